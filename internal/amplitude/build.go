package amplitude

import (
	"fmt"

	"github.com/GoSim-25-26J-441/amplitude-core/pkg/config"
)

// Factory builds the node for one declared amplitude.
type Factory func(spec config.AmplitudeSpec) (Node, error)

// Registry maps amplitude kinds to factories.
type Registry map[string]Factory

// DefaultRegistry returns the built-in kinds: scalar, cscalar, pcscalar,
// constant and piecewise_m.
func DefaultRegistry() Registry {
	return Registry{
		"scalar":   func(config.AmplitudeSpec) (Node, error) { return Scalar{}, nil },
		"cscalar":  func(config.AmplitudeSpec) (Node, error) { return ComplexScalar{}, nil },
		"pcscalar": func(config.AmplitudeSpec) (Node, error) { return PolarComplexScalar{}, nil },
		"constant": func(s config.AmplitudeSpec) (Node, error) { return Constant{Value: complex(s.Re, s.Im)}, nil },
		"piecewise_m": func(s config.AmplitudeSpec) (Node, error) {
			if s.Bins <= 0 || len(s.Range) != 2 {
				return nil, fmt.Errorf("piecewise_m needs bins and range")
			}
			return NewPiecewiseM(s.Bins, s.Range[0], s.Range[1], s.Daughters...), nil
		},
	}
}

// Build constructs a model from spec and applies its parameter plan.
// A nil registry means DefaultRegistry.
func Build(spec *config.ModelSpec, reg Registry) (*Model, error) {
	if reg == nil {
		reg = DefaultRegistry()
	}
	amps := make(map[string]*Amplitude, len(spec.Amplitudes))
	for _, a := range spec.Amplitudes {
		factory, ok := reg[a.Kind]
		if !ok {
			return nil, fmt.Errorf("%w: %s (amplitude %s)", ErrUnknownKind, a.Kind, a.Name)
		}
		node, err := factory(a)
		if err != nil {
			return nil, fmt.Errorf("amplitude %s: %w", a.Name, err)
		}
		amps[a.Name] = New(a.Name, node)
	}

	sums := make([]Expr, len(spec.Sums))
	for i, terms := range spec.Sums {
		exprs := make([]Expr, len(terms))
		for j := range terms {
			e, err := buildExpr(&terms[j], amps)
			if err != nil {
				return nil, fmt.Errorf("sums[%d][%d]: %w", i, j, err)
			}
			exprs[j] = e
		}
		sums[i] = Sum(exprs...)
	}

	m, err := NewModel(sums...)
	if err != nil {
		return nil, err
	}
	if spec.Parameters != nil {
		if err := spec.Parameters.Apply(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func buildExpr(e *config.ExprSpec, amps map[string]*Amplitude) (Expr, error) {
	switch {
	case e.Amp != "":
		a, ok := amps[e.Amp]
		if !ok {
			return nil, notFound(e.Amp)
		}
		return a, nil
	case e.Real != nil:
		x, err := buildExpr(e.Real, amps)
		if err != nil {
			return nil, err
		}
		return Real(x), nil
	case e.Imag != nil:
		x, err := buildExpr(e.Imag, amps)
		if err != nil {
			return nil, err
		}
		return Imag(x), nil
	case e.Product != nil:
		xs, err := buildExprs(e.Product, amps)
		if err != nil {
			return nil, err
		}
		return Product(xs...), nil
	case e.Sum != nil:
		xs, err := buildExprs(e.Sum, amps)
		if err != nil {
			return nil, err
		}
		return Sum(xs...), nil
	}
	return nil, fmt.Errorf("%w: empty expression", ErrInvalidAmplitude)
}

func buildExprs(es []config.ExprSpec, amps map[string]*Amplitude) ([]Expr, error) {
	out := make([]Expr, len(es))
	for i := range es {
		x, err := buildExpr(&es[i], amps)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}
