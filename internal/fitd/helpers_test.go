package fitd

import (
	"context"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/amplitude-core/internal/amplitude"
	"github.com/GoSim-25-26J-441/amplitude-core/internal/dataset"
	"github.com/GoSim-25-26J-441/amplitude-core/internal/store"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/config"
)

const scalarModelYAML = `
amplitudes:
  - name: a
    kind: scalar
sums:
  - [a]
`

const slowModelYAML = `
amplitudes:
  - name: a
    kind: slow
sums:
  - [a]
`

// slowScalar is a scalar node that sleeps on every event so fits stay
// running long enough to be observed.
type slowScalar struct{ amplitude.NoCache }

func (slowScalar) Calculate(p []float64, _ *dataset.Event) (complex128, error) {
	time.Sleep(time.Millisecond)
	return complex(p[0], 0), nil
}
func (slowScalar) Parameters() []string  { return []string{"value"} }
func (slowScalar) Clone() amplitude.Node { return slowScalar{} }

func unitWeights(n int) *dataset.Dataset {
	events := make([]dataset.Event, n)
	for i := range events {
		events[i].Weight = 1
	}
	return dataset.New(events)
}

func newTestExecutor(t *testing.T) *FitExecutor {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemoryStore()
	if err := st.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveDataset(ctx, "data", unitWeights(20)); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveDataset(ctx, "mc", unitWeights(40)); err != nil {
		t.Fatal(err)
	}

	reg := amplitude.DefaultRegistry()
	reg["slow"] = func(config.AmplitudeSpec) (amplitude.Node, error) { return slowScalar{}, nil }

	e := NewFitExecutor(NewSessionStore(), st, Options{Workers: 2, MaxEvaluations: 2000, Registry: reg})
	t.Cleanup(e.Shutdown)
	return e
}

func createSession(t *testing.T, e *FitExecutor, id, model string) *SessionRecord {
	t.Helper()
	rec, err := e.CreateSession(context.Background(), SessionInput{ID: id, Model: model, Data: "data", MC: "mc"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return rec
}
