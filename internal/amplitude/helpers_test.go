package amplitude

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/GoSim-25-26J-441/amplitude-core/internal/dataset"
	"github.com/GoSim-25-26J-441/amplitude-core/internal/kinematics"
)

// countingNode returns its parameter "x" times the event weight and counts
// precalculations.
type countingNode struct {
	precalcs atomic.Int32
	calls    atomic.Int32
	failPre  error
	failCalc error
}

func (c *countingNode) Precalculate(*dataset.Dataset) error {
	c.precalcs.Add(1)
	return c.failPre
}

func (c *countingNode) Calculate(p []float64, ev *dataset.Event) (complex128, error) {
	c.calls.Add(1)
	if c.failCalc != nil && ev.Index == 1 {
		return 0, c.failCalc
	}
	return complex(p[0]*ev.Weight, 0), nil
}

func (c *countingNode) Parameters() []string { return []string{"x"} }

func testDataset(n int) *dataset.Dataset {
	events := make([]dataset.Event, n)
	for i := range events {
		m := 0.5 + 0.25*float64(i)
		events[i] = dataset.Event{
			Weight: 1 + 0.5*float64(i),
			Beam:   kinematics.New(8, 0, 0, 8),
			Daughters: []kinematics.FourMomentum{
				kinematics.New(m/2, 0, m/2, 0),
				kinematics.New(m/2, 0, -m/2, 0),
			},
		}
	}
	return dataset.New(events)
}

func evaluate(t *testing.T, m *Model, ds *dataset.Dataset, free ...float64) []float64 {
	t.Helper()
	b, err := m.Load(ds, 2)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	out, err := evaluateBinding(b, free...)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return out
}

func evaluateBinding(b *Binding, free ...float64) ([]float64, error) {
	s, err := b.Snapshot(free)
	if err != nil {
		return nil, err
	}
	scratch := b.NewScratch()
	out := make([]float64, b.Dataset().Len())
	for i := range out {
		v, err := b.Intensity(s, scratch, b.Dataset().Event(i))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func mustModel(t *testing.T, sums ...Expr) *Model {
	t.Helper()
	m, err := NewModel(sums...)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	return m
}

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
