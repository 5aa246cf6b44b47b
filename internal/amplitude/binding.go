package amplitude

import (
	"fmt"
	"reflect"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GoSim-25-26J-441/amplitude-core/internal/dataset"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/logger"
)

// nodeSlot records which dataset a model's own node instance is bound to.
type nodeSlot struct {
	node    Node
	boundTo *dataset.Dataset
}

type boundAmp struct {
	name  string
	node  Node
	start int
	end   int
}

// Binding is a model whose amplitudes have been precalculated against one
// dataset. It is read-only and safe for concurrent use.
type Binding struct {
	model *Model
	ds    *dataset.Dataset
	amps  []boundAmp
}

// Load precalculates every unique amplitude of m against ds, running up to
// workers nodes at once (all CPUs when workers <= 0). The first load against a
// dataset uses the nodes given to NewModel; loading a different dataset
// requires each node to implement Cloner. Loading the same dataset again
// reuses the existing caches. A pointer node registered under several names
// is precalculated once and shared by those amplitudes.
func (m *Model) Load(ds *dataset.Dataset, workers int) (*Binding, error) {
	if ds == nil {
		return nil, ErrNilDataset
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	m.slotsMu.Lock()
	defer m.slotsMu.Unlock()

	b := &Binding{model: m, ds: ds, amps: make([]boundAmp, len(m.amps))}
	pending := make([]bool, len(m.amps))
	alias := make([]int, len(m.amps))
	first := make(map[Node]int)
	for i, a := range m.amps {
		slot := &m.slots[i]
		node := slot.node
		alias[i] = -1
		if reflect.TypeOf(node).Kind() == reflect.Pointer {
			if j, ok := first[node]; ok {
				alias[i] = j
				b.amps[i] = boundAmp{name: a.name, node: b.amps[j].node, start: a.paramStart, end: a.paramStart + len(a.params)}
				continue
			}
			first[node] = i
		}
		switch {
		case slot.boundTo == ds:
		case slot.boundTo == nil:
			pending[i] = true
		default:
			c, ok := node.(Cloner)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrNodeShared, a.name)
			}
			node = c.Clone()
			pending[i] = true
		}
		b.amps[i] = boundAmp{name: a.name, node: node, start: a.paramStart, end: a.paramStart + len(a.params)}
	}

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range b.amps {
		if !pending[i] {
			continue
		}
		ba := b.amps[i]
		g.Go(func() error {
			if err := ba.node.Precalculate(ds); err != nil {
				return &PrecalculationError{Amplitude: ba.name, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range b.amps {
		loaded := pending[i] || (alias[i] >= 0 && pending[alias[i]])
		if loaded && m.slots[i].boundTo == nil {
			m.slots[i].boundTo = ds
		}
	}
	logger.Debug("model loaded", "events", ds.Len(), "amplitudes", len(b.amps), "duration", time.Since(start))
	return b, nil
}

// Model returns the bound model.
func (b *Binding) Model() *Model { return b.model }

// Dataset returns the bound dataset.
func (b *Binding) Dataset() *dataset.Dataset { return b.ds }

// Snapshot is the routing of one free vector onto every amplitude together
// with the activation flags current when it was taken.
type Snapshot struct {
	params []float64
	active []bool
}

// Snapshot validates free against the model and captures the model state an
// evaluation will use. Model mutations after this call do not affect it.
func (b *Binding) Snapshot(free []float64) (*Snapshot, error) {
	m := b.model
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(free) != m.params.nFree {
		return nil, fmt.Errorf("%w: got %d, model has %d free", ErrParameterCount, len(free), m.params.nFree)
	}
	s := &Snapshot{
		params: make([]float64, len(m.params.keys)),
		active: append([]bool(nil), m.active...),
	}
	m.params.expand(free, s.params)
	return s, nil
}

// NewScratch returns a per-worker buffer for Intensity.
func (b *Binding) NewScratch() []complex128 {
	return make([]complex128, len(b.amps))
}

// Intensity evaluates the sum over coherent sums of |sum of terms|² for one
// event. scratch must come from NewScratch and not be shared between goroutines.
func (b *Binding) Intensity(s *Snapshot, scratch []complex128, ev *dataset.Event) (float64, error) {
	for i := range b.amps {
		if !s.active[i] {
			scratch[i] = 0
			continue
		}
		a := &b.amps[i]
		v, err := a.node.Calculate(s.params[a.start:a.end:a.end], ev)
		if err != nil {
			return 0, &EvaluationError{Amplitude: a.name, Event: ev.Index, Err: err}
		}
		scratch[i] = v
	}
	total := 0.0
	for i := range b.model.groups {
		v := b.model.groups[i].eval(scratch)
		total += real(v)*real(v) + imag(v)*imag(v)
	}
	return total, nil
}
