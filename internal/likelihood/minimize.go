package likelihood

import (
	"context"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	"github.com/GoSim-25-26J-441/amplitude-core/internal/amplitude"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/utils"
)

// Objective adapts the likelihood to gonum's optimize.Problem. Evaluation
// errors and context cancellation stop the minimizer through Status and are
// reported by Err. Trial points are clamped into the model's parameter
// bounds as captured when the objective was created.
type Objective struct {
	l      *ExtendedLogLikelihood
	ctx    context.Context
	bounds []amplitude.Bounds

	mu     sync.Mutex
	err    error
	evals  int
	onEval func(x []float64, nll float64)
}

// Objective returns a minimizer adapter bound to ctx.
func (l *ExtendedLogLikelihood) Objective(ctx context.Context) *Objective {
	return &Objective{l: l, ctx: ctx, bounds: l.Model().Bounds()}
}

// Clamp returns x projected into the parameter bounds. x is returned as is
// when it already lies inside them.
func (o *Objective) Clamp(x []float64) []float64 {
	var out []float64
	for i, v := range x {
		if i >= len(o.bounds) {
			break
		}
		c := utils.ClampFloat64(v, o.bounds[i].Lower, o.bounds[i].Upper)
		if c == v || math.IsNaN(v) {
			continue
		}
		if out == nil {
			out = append([]float64(nil), x...)
		}
		out[i] = c
	}
	if out == nil {
		return x
	}
	return out
}

// OnEvaluate registers a callback run after every successful evaluation.
func (o *Objective) OnEvaluate(fn func(x []float64, nll float64)) {
	o.onEval = fn
}

// Func evaluates the NLL. On error it records the error and returns NaN.
// Once the context is done it returns NaN without evaluating.
func (o *Objective) Func(x []float64) float64 {
	if o.ctx.Err() != nil {
		return math.NaN()
	}
	x = o.Clamp(x)
	nll, err := o.l.Evaluate(x)
	o.mu.Lock()
	o.evals++
	if err != nil && o.err == nil {
		o.err = err
	}
	o.mu.Unlock()
	if err != nil {
		return math.NaN()
	}
	if o.onEval != nil {
		o.onEval(x, nll)
	}
	return nll
}

// Grad fills grad with a central finite-difference gradient.
func (o *Objective) Grad(grad, x []float64) {
	fd.Gradient(grad, o.Func, x, &fd.Settings{Formula: fd.Central})
}

// Status stops the minimizer after an evaluation error or cancellation.
func (o *Objective) Status() (optimize.Status, error) {
	if err := o.Err(); err != nil {
		return optimize.Failure, err
	}
	if err := o.ctx.Err(); err != nil {
		return optimize.Failure, err
	}
	return optimize.NotTerminated, nil
}

// Err returns the first evaluation error.
func (o *Objective) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Evaluations returns the number of Func calls so far.
func (o *Objective) Evaluations() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.evals
}

// Problem returns the optimize.Problem view of the objective.
func (o *Objective) Problem() optimize.Problem {
	return optimize.Problem{Func: o.Func, Grad: o.Grad, Status: o.Status}
}

// Method returns the gonum minimizer for a method name.
func Method(name string) (optimize.Method, error) {
	switch name {
	case "", "nelder-mead":
		return &optimize.NelderMead{}, nil
	case "bfgs":
		return &optimize.BFGS{}, nil
	case "lbfgs":
		return &optimize.LBFGS{}, nil
	}
	return nil, fmt.Errorf("unknown minimization method: %s", name)
}

// Minimize runs method from x0 (the model's initial values when nil).
// A nil method means Nelder-Mead. Cancelling ctx stops the run.
func (l *ExtendedLogLikelihood) Minimize(ctx context.Context, x0 []float64, method optimize.Method, settings *optimize.Settings) (*optimize.Result, error) {
	return l.MinimizeObjective(l.Objective(ctx), x0, method, settings)
}

// MinimizeObjective is Minimize with a caller-prepared objective.
func (l *ExtendedLogLikelihood) MinimizeObjective(obj *Objective, x0 []float64, method optimize.Method, settings *optimize.Settings) (*optimize.Result, error) {
	if x0 == nil {
		x0 = l.Model().Initial()
	}
	if len(x0) == 0 {
		return nil, ErrNoFreeParameters
	}
	if method == nil {
		method = &optimize.NelderMead{}
	}
	res, err := optimize.Minimize(obj.Problem(), obj.Clamp(x0), settings, method)
	if res != nil {
		res.X = obj.Clamp(res.X)
	}
	if evalErr := obj.Err(); evalErr != nil {
		return res, evalErr
	}
	if ctxErr := obj.ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	return res, err
}
