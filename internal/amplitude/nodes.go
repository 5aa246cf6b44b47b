package amplitude

import (
	"fmt"
	"math/cmplx"

	"github.com/GoSim-25-26J-441/amplitude-core/internal/dataset"
)

// Scalar returns its single parameter "value" as a real number.
type Scalar struct{ NoCache }

func (Scalar) Calculate(p []float64, _ *dataset.Event) (complex128, error) {
	return complex(p[0], 0), nil
}
func (Scalar) Parameters() []string { return []string{"value"} }
func (Scalar) Clone() Node          { return Scalar{} }

// ComplexScalar returns "real" + i·"imag".
type ComplexScalar struct{ NoCache }

func (ComplexScalar) Calculate(p []float64, _ *dataset.Event) (complex128, error) {
	return complex(p[0], p[1]), nil
}
func (ComplexScalar) Parameters() []string { return []string{"real", "imag"} }
func (ComplexScalar) Clone() Node          { return ComplexScalar{} }

// PolarComplexScalar returns "mag"·exp(i·"phi").
type PolarComplexScalar struct{ NoCache }

func (PolarComplexScalar) Calculate(p []float64, _ *dataset.Event) (complex128, error) {
	return cmplx.Rect(p[0], p[1]), nil
}
func (PolarComplexScalar) Parameters() []string { return []string{"mag", "phi"} }
func (PolarComplexScalar) Clone() Node          { return PolarComplexScalar{} }

// Constant returns a fixed value and has no parameters.
type Constant struct {
	NoCache
	Value complex128
}

func (c Constant) Calculate([]float64, *dataset.Event) (complex128, error) { return c.Value, nil }
func (Constant) Parameters() []string                                     { return nil }
func (c Constant) Clone() Node                                            { return c }

// Piecewise is a complex step function of an event variable over nbins
// equal-width [lo, hi) bins, with parameters "bin {i} re" and "bin {i} im".
// Events outside the range evaluate to zero.
type Piecewise struct {
	bins     int
	lo, hi   float64
	variable func(*dataset.Event) (float64, error)

	binOf []int
}

// NewPiecewise builds a step function of variable.
func NewPiecewise(bins int, lo, hi float64, variable func(*dataset.Event) (float64, error)) *Piecewise {
	return &Piecewise{bins: bins, lo: lo, hi: hi, variable: variable}
}

// NewPiecewiseM builds a step function of the invariant mass of the listed
// daughters (the first two when none are given).
func NewPiecewiseM(bins int, lo, hi float64, daughters ...int) *Piecewise {
	if len(daughters) == 0 {
		daughters = []int{0, 1}
	}
	ds := append([]int(nil), daughters...)
	return NewPiecewise(bins, lo, hi, func(ev *dataset.Event) (float64, error) {
		for _, d := range ds {
			if d < 0 || d >= len(ev.Daughters) {
				return 0, fmt.Errorf("event has %d daughters, need index %d", len(ev.Daughters), d)
			}
		}
		return dataset.DaughterMass(ev, ds...), nil
	})
}

func (p *Piecewise) Precalculate(ds *dataset.Dataset) error {
	if p.bins <= 0 || !(p.hi > p.lo) {
		return fmt.Errorf("%w: [%g, %g) in %d bins", dataset.ErrEmptyRange, p.lo, p.hi, p.bins)
	}
	binOf := make([]int, ds.Len())
	for i := range binOf {
		v, err := p.variable(ds.Event(i))
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		b, ok := dataset.BinIndex(v, p.lo, p.hi, p.bins)
		if !ok {
			b = -1
		}
		binOf[i] = b
	}
	p.binOf = binOf
	return nil
}

func (p *Piecewise) Calculate(params []float64, ev *dataset.Event) (complex128, error) {
	b := p.binOf[ev.Index]
	if b < 0 {
		return 0, nil
	}
	return complex(params[2*b], params[2*b+1]), nil
}

func (p *Piecewise) Parameters() []string {
	out := make([]string, 0, 2*p.bins)
	for i := 0; i < p.bins; i++ {
		out = append(out, fmt.Sprintf("bin %d re", i), fmt.Sprintf("bin %d im", i))
	}
	return out
}

func (p *Piecewise) Clone() Node {
	return &Piecewise{bins: p.bins, lo: p.lo, hi: p.hi, variable: p.variable}
}

// NewScalar is shorthand for an amplitude wrapping Scalar.
func NewScalar(name string) *Amplitude { return New(name, Scalar{}) }

// NewComplexScalar is shorthand for an amplitude wrapping ComplexScalar.
func NewComplexScalar(name string) *Amplitude { return New(name, ComplexScalar{}) }

// NewPolarComplexScalar is shorthand for an amplitude wrapping PolarComplexScalar.
func NewPolarComplexScalar(name string) *Amplitude { return New(name, PolarComplexScalar{}) }
