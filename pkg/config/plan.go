package config

import (
	"fmt"
	"math"
)

// ParameterEditor is the set of model mutations a ParameterPlan drives
type ParameterEditor interface {
	Fix(amplitude, parameter string, value float64) error
	Free(amplitude, parameter string, initial float64) error
	Constrain(amplitude1, parameter1, amplitude2, parameter2 string) error
	SetBounds(amplitude, parameter string, lower, upper float64) error
	SetInitial(amplitude, parameter string, value float64) error
	Activate(names ...string) error
	Deactivate(names ...string) error
	Isolate(names ...string) error
}

// Validate checks that every reference names an amplitude and a parameter
func (p *ParameterPlan) Validate() error {
	check := func(kind string, i int, r ParamRef) error {
		if r.Amplitude == "" || r.Parameter == "" {
			return fmt.Errorf("%s[%d]: amplitude and parameter are required", kind, i)
		}
		return nil
	}
	for i, c := range p.Constraints {
		if err := check("constraints", i, c.A); err != nil {
			return err
		}
		if err := check("constraints", i, c.B); err != nil {
			return err
		}
	}
	for i, v := range p.Fixed {
		if err := check("fixed", i, v.ParamRef); err != nil {
			return err
		}
	}
	for i, v := range p.Free {
		if err := check("free", i, v.ParamRef); err != nil {
			return err
		}
	}
	for i, b := range p.Bounds {
		if err := check("bounds", i, b.ParamRef); err != nil {
			return err
		}
		lo, hi := b.Limits()
		if lo > hi {
			return fmt.Errorf("bounds[%d]: lower %g exceeds upper %g", i, lo, hi)
		}
	}
	for i, v := range p.Initial {
		if err := check("initial", i, v.ParamRef); err != nil {
			return err
		}
	}
	return nil
}

// Limits returns the bounds with missing ends as infinities
func (b ParamBounds) Limits() (float64, float64) {
	lo, hi := math.Inf(-1), math.Inf(1)
	if b.Lower != nil {
		lo = *b.Lower
	}
	if b.Upper != nil {
		hi = *b.Upper
	}
	return lo, hi
}

// Apply runs the plan against ed in the order constraints, fixed, free,
// bounds, initial, activate, isolate, deactivate. It stops at the first error;
// edits applied before it are kept.
func (p *ParameterPlan) Apply(ed ParameterEditor) error {
	for _, c := range p.Constraints {
		if err := ed.Constrain(c.A.Amplitude, c.A.Parameter, c.B.Amplitude, c.B.Parameter); err != nil {
			return fmt.Errorf("constrain %s.%s = %s.%s: %w", c.A.Amplitude, c.A.Parameter, c.B.Amplitude, c.B.Parameter, err)
		}
	}
	for _, v := range p.Fixed {
		if err := ed.Fix(v.Amplitude, v.Parameter, v.Value); err != nil {
			return fmt.Errorf("fix %s.%s: %w", v.Amplitude, v.Parameter, err)
		}
	}
	for _, v := range p.Free {
		if err := ed.Free(v.Amplitude, v.Parameter, v.Value); err != nil {
			return fmt.Errorf("free %s.%s: %w", v.Amplitude, v.Parameter, err)
		}
	}
	for _, b := range p.Bounds {
		lo, hi := b.Limits()
		if err := ed.SetBounds(b.Amplitude, b.Parameter, lo, hi); err != nil {
			return fmt.Errorf("bounds %s.%s: %w", b.Amplitude, b.Parameter, err)
		}
	}
	for _, v := range p.Initial {
		if err := ed.SetInitial(v.Amplitude, v.Parameter, v.Value); err != nil {
			return fmt.Errorf("initial %s.%s: %w", v.Amplitude, v.Parameter, err)
		}
	}
	if len(p.Activate) > 0 {
		if err := ed.Activate(p.Activate...); err != nil {
			return fmt.Errorf("activate: %w", err)
		}
	}
	if len(p.Isolate) > 0 {
		if err := ed.Isolate(p.Isolate...); err != nil {
			return fmt.Errorf("isolate: %w", err)
		}
	}
	if len(p.Deactivate) > 0 {
		if err := ed.Deactivate(p.Deactivate...); err != nil {
			return fmt.Errorf("deactivate: %w", err)
		}
	}
	return nil
}
