// Package amplitude implements named computation nodes, the expression
// algebra over them, and models combining expressions into intensities.
package amplitude

import (
	"github.com/GoSim-25-26J-441/amplitude-core/internal/dataset"
)

// Node is one computation unit. Precalculate runs once per dataset before any
// Calculate call and may fill caches indexed by Event.Index. Calculate must not
// mutate shared state: it is called concurrently for different events.
// params holds exactly len(Parameters()) values in Parameters() order.
type Node interface {
	Precalculate(ds *dataset.Dataset) error
	Calculate(params []float64, ev *dataset.Event) (complex128, error)
	Parameters() []string
}

// Cloner is implemented by nodes that can be bound to more than one dataset.
// Clone returns an unbound copy with an empty cache.
type Cloner interface {
	Clone() Node
}

// NoCache can be embedded by nodes with nothing to precalculate.
type NoCache struct{}

func (NoCache) Precalculate(*dataset.Dataset) error { return nil }

// FuncNode adapts a parameter-free function of the event to a Node.
type FuncNode struct {
	NoCache
	Fn func(ev *dataset.Event) (complex128, error)
}

func (f FuncNode) Calculate(_ []float64, ev *dataset.Event) (complex128, error) { return f.Fn(ev) }
func (f FuncNode) Parameters() []string                                         { return nil }
func (f FuncNode) Clone() Node                                                  { return f }
