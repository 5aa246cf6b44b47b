package likelihood

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/GoSim-25-26J-441/amplitude-core/internal/amplitude"
	"github.com/GoSim-25-26J-441/amplitude-core/internal/dataset"
	"github.com/GoSim-25-26J-441/amplitude-core/internal/engine"
)

func weighted(ws ...float64) *dataset.Dataset {
	events := make([]dataset.Event, len(ws))
	for i, w := range ws {
		events[i] = dataset.Event{Weight: w}
	}
	return dataset.New(events)
}

func ones(n int) *dataset.Dataset {
	ws := make([]float64, n)
	for i := range ws {
		ws[i] = 1
	}
	return weighted(ws...)
}

func build(t *testing.T, m *amplitude.Model, data, mc *dataset.Dataset) *ExtendedLogLikelihood {
	t.Helper()
	dm, err := engine.NewManager(m, data, 2)
	if err != nil {
		t.Fatal(err)
	}
	mm, err := engine.NewManager(m, mc, 2)
	if err != nil {
		t.Fatal(err)
	}
	l, err := New(dm, mm)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func scalarModel(t *testing.T) *amplitude.Model {
	t.Helper()
	m, err := amplitude.NewModel(amplitude.NewScalar("a"))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestNLLSignAndScale(t *testing.T) {
	m, err := amplitude.NewModel(amplitude.New("one", amplitude.Constant{Value: 1}))
	if err != nil {
		t.Fatal(err)
	}
	l := build(t, m, ones(10), ones(5))

	for _, opts := range [][]engine.EvalOption{nil, {engine.Serial()}} {
		nll, err := l.Evaluate(nil, opts...)
		if err != nil {
			t.Fatal(err)
		}
		if nll != 20 {
			t.Errorf("NLL = %v, want 20", nll)
		}
	}
}

func TestNLLWeighted(t *testing.T) {
	data := weighted(0.5, 2, 1.5)
	mc := weighted(1, 3)
	l := build(t, scalarModel(t), data, mc)

	a := 1.7
	nll, err := l.Evaluate([]float64{a})
	if err != nil {
		t.Fatal(err)
	}
	nData, nMC := 4.0, 4.0
	want := -2 * (nData*math.Log(a*a) - nData/nMC*nMC*a*a)
	if math.Abs(nll-want) > 1e-12 {
		t.Errorf("NLL = %v, want %v", nll, want)
	}
}

func TestNLLIndexed(t *testing.T) {
	l := build(t, scalarModel(t), weighted(1, 2, 3), weighted(1, 1, 4))
	a := 0.9
	nll, err := l.EvaluateIndexed([]float64{a}, []int{2, 2}, []int{0})
	if err != nil {
		t.Fatal(err)
	}
	want := -2 * (6*math.Log(a*a) - 6.0/1.0*1*a*a)
	if math.Abs(nll-want) > 1e-12 {
		t.Errorf("NLL = %v, want %v", nll, want)
	}

	_, err = l.EvaluateIndexed([]float64{a}, nil, []int{7})
	if !errors.Is(err, engine.ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
	_, err = l.EvaluateIndexed([]float64{a}, nil, []int{})
	if !errors.Is(err, ErrEmptyMonteCarlo) {
		t.Errorf("expected ErrEmptyMonteCarlo, got %v", err)
	}
}

func TestNumericalPathologiesPropagate(t *testing.T) {
	l := build(t, scalarModel(t), ones(3), ones(3))

	nll, err := l.Evaluate([]float64{0})
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsInf(nll, 1) {
		t.Errorf("NLL at zero intensity = %v, want +Inf", nll)
	}

	nll, err = l.Evaluate([]float64{math.NaN()})
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(nll) {
		t.Errorf("NLL at NaN parameter = %v, want NaN", nll)
	}
}

func TestNewValidation(t *testing.T) {
	m1, m2 := scalarModel(t), scalarModel(t)
	d1, err := engine.NewManager(m1, ones(2), 1)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := engine.NewManager(m2, ones(2), 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(d1, d2); !errors.Is(err, ErrModelMismatch) {
		t.Errorf("expected ErrModelMismatch, got %v", err)
	}

	empty, err := engine.NewManager(m1, ones(0), 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(d1, empty); !errors.Is(err, ErrEmptyMonteCarlo) {
		t.Errorf("expected ErrEmptyMonteCarlo, got %v", err)
	}
}

func TestIntensityScaling(t *testing.T) {
	l := build(t, scalarModel(t), weighted(1, 1, 1, 1), weighted(0.5, 1.5))
	out, err := l.Intensity([]float64{3}, nil)
	if err != nil {
		t.Fatal(err)
	}
	// I = 9, N_data/N_MC = 2
	want := []float64{9, 27}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-12 {
			t.Errorf("event %d: %v, want %v", i, out[i], want[i])
		}
	}

	tests := []struct {
		name    string
		dataIdx []int
		mcIdx   []int
		want    []float64
	}{
		{"all data, one mc event", nil, []int{1}, []float64{9 * 1.5 * 4 / 1.5}},
		{"one data event, one mc event", []int{0}, []int{1}, []float64{9}},
		{"resampled", []int{0, 0}, []int{0, 0}, []float64{9, 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := l.IntensityIndexed([]float64{3}, nil, tt.dataIdx, tt.mcIdx)
			if err != nil {
				t.Fatal(err)
			}
			if len(out) != len(tt.want) {
				t.Fatalf("got %v, want %v", out, tt.want)
			}
			for i := range tt.want {
				if math.Abs(out[i]-tt.want[i]) > 1e-12 {
					t.Errorf("event %d: %v, want %v", i, out[i], tt.want[i])
				}
			}
		})
	}

	if _, err := l.IntensityIndexed([]float64{3}, nil, []int{4}, nil); !errors.Is(err, engine.ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestIntensityIndexedUsesDataSelection(t *testing.T) {
	l := build(t, scalarModel(t), ones(4), ones(4))
	out, err := l.IntensityIndexed([]float64{1}, nil, nil, []int{0})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0] != 4 {
		t.Errorf("intensity = %v, want [4]", out)
	}
}

func TestIntensityOverOtherMonteCarlo(t *testing.T) {
	l := build(t, scalarModel(t), ones(4), weighted(0.5, 1.5))
	generated := ones(3)

	out, err := l.Intensity([]float64{3}, generated)
	if err != nil {
		t.Fatal(err)
	}
	// I = 9, N_data/N_MC = 4/3
	if len(out) != 3 {
		t.Fatalf("expected 3 values, got %v", out)
	}
	for i, v := range out {
		if math.Abs(v-12) > 1e-12 {
			t.Errorf("event %d: %v, want 12", i, v)
		}
	}

	out, err = l.IntensityIndexed([]float64{3}, generated, []int{0}, []int{2})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || math.Abs(out[0]-9) > 1e-12 {
		t.Errorf("indexed intensity = %v, want [9]", out)
	}

	// The bound sample is untouched.
	bound, err := l.Intensity([]float64{3}, l.MC().Dataset())
	if err != nil {
		t.Fatal(err)
	}
	if len(bound) != 2 || math.Abs(bound[1]-9*1.5*2) > 1e-12 {
		t.Errorf("bound intensity = %v", bound)
	}

	if _, err := l.Intensity([]float64{3}, weighted(0, 0)); !errors.Is(err, ErrEmptyMonteCarlo) {
		t.Errorf("expected ErrEmptyMonteCarlo, got %v", err)
	}
}

func TestMinimizeFindsUnitAmplitude(t *testing.T) {
	for _, name := range []string{"nelder-mead", "bfgs", "lbfgs"} {
		t.Run(name, func(t *testing.T) {
			l := build(t, scalarModel(t), ones(20), ones(40))
			method, err := Method(name)
			if err != nil {
				t.Fatal(err)
			}
			res, err := l.Minimize(context.Background(), []float64{0.4}, method, nil)
			if err != nil {
				t.Fatalf("Minimize: %v", err)
			}
			if got := math.Abs(res.X[0]); math.Abs(got-1) > 1e-2 {
				t.Errorf("|a| = %v, want 1", got)
			}
		})
	}
}

func TestMinimizeUsesModelInitial(t *testing.T) {
	m := scalarModel(t)
	if err := m.SetInitial("a", "value", 2.5); err != nil {
		t.Fatal(err)
	}
	l := build(t, m, ones(10), ones(10))

	obj := l.Objective(context.Background())
	var first []float64
	obj.OnEvaluate(func(x []float64, _ float64) {
		if first == nil {
			first = append([]float64(nil), x...)
		}
	})
	if _, err := l.MinimizeObjective(obj, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 || first[0] != 2.5 {
		t.Errorf("first evaluation at %v, want [2.5]", first)
	}
	if obj.Evaluations() == 0 {
		t.Error("expected evaluations to be counted")
	}
}

func TestMinimizeCancelled(t *testing.T) {
	l := build(t, scalarModel(t), ones(5), ones(5))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Minimize(ctx, []float64{0.5}, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMinimizeSurfacesEvaluationError(t *testing.T) {
	boom := errors.New("boom")
	bad := amplitude.New("bad", amplitude.FuncNode{Fn: func(*dataset.Event) (complex128, error) { return 0, boom }})
	m, err := amplitude.NewModel(amplitude.NewScalar("a"), bad)
	if err != nil {
		t.Fatal(err)
	}
	l := build(t, m, ones(3), ones(3))
	_, err = l.Minimize(context.Background(), []float64{1}, nil, nil)
	if !errors.Is(err, boom) {
		t.Errorf("expected evaluation error, got %v", err)
	}
}

func TestMinimizeWithoutFreeParameters(t *testing.T) {
	m := scalarModel(t)
	if err := m.Fix("a", "value", 1); err != nil {
		t.Fatal(err)
	}
	l := build(t, m, ones(3), ones(3))
	if _, err := l.Minimize(context.Background(), nil, nil, nil); !errors.Is(err, ErrNoFreeParameters) {
		t.Errorf("expected ErrNoFreeParameters, got %v", err)
	}
}

func TestMethodUnknown(t *testing.T) {
	if _, err := Method("simulated-annealing"); err == nil {
		t.Error("expected error for unknown method")
	}
}

func TestMinimizeRespectsBounds(t *testing.T) {
	m := scalarModel(t)
	if err := m.SetBounds("a", "value", 1.5, 3); err != nil {
		t.Fatal(err)
	}
	l := build(t, m, ones(20), ones(40))

	obj := l.Objective(context.Background())
	obj.OnEvaluate(func(x []float64, _ float64) {
		if x[0] < 1.5 || x[0] > 3 {
			t.Errorf("evaluated outside bounds at %v", x)
		}
	})
	res, err := l.MinimizeObjective(obj, []float64{2}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.X[0]-1.5) > 1e-2 {
		t.Errorf("a = %v, want the lower bound 1.5", res.X[0])
	}
}

func TestObjectiveClamp(t *testing.T) {
	m := scalarModel(t)
	if err := m.SetBounds("a", "value", -1, 1); err != nil {
		t.Fatal(err)
	}
	l := build(t, m, ones(2), ones(2))
	obj := l.Objective(context.Background())

	in := []float64{0.5}
	if out := obj.Clamp(in); &out[0] != &in[0] {
		t.Error("expected in-bounds point to be returned unchanged")
	}
	in = []float64{4}
	if out := obj.Clamp(in); out[0] != 1 || in[0] != 4 {
		t.Errorf("Clamp(%v) = %v, want [1] without modifying the input", in, out)
	}
}
