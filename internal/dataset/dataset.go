// Package dataset holds the immutable event records evaluated by models.
package dataset

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/GoSim-25-26J-441/amplitude-core/internal/kinematics"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/utils"
)

var (
	ErrIndexMismatch = errors.New("event index does not match position")
	ErrEmptyRange    = errors.New("empty binning range")
)

// Event is one kinematic record. Index is its position in the owning
// Dataset and is the key nodes use to look up precalculated values.
type Event struct {
	Index     int                       `json:"index"`
	Weight    float64                   `json:"weight"`
	Beam      kinematics.FourMomentum   `json:"beam"`
	Recoil    kinematics.FourMomentum   `json:"recoil"`
	Daughters []kinematics.FourMomentum `json:"daughters"`
	Eps       r3.Vec                    `json:"eps"`
}

// Dataset is an ordered, read-only collection of events.
type Dataset struct {
	events  []Event
	weights []float64
}

// New copies events into a Dataset, assigning each event its position as Index.
func New(events []Event) *Dataset {
	ds := &Dataset{
		events:  make([]Event, len(events)),
		weights: make([]float64, len(events)),
	}
	copy(ds.events, events)
	for i := range ds.events {
		ds.events[i].Index = i
		ds.weights[i] = ds.events[i].Weight
	}
	return ds
}

// Validate checks that every event's Index equals its position and that the
// weight column mirrors the events.
func (d *Dataset) Validate() error {
	if len(d.weights) != len(d.events) {
		return fmt.Errorf("%w: %d weights for %d events", ErrIndexMismatch, len(d.weights), len(d.events))
	}
	for i := range d.events {
		if d.events[i].Index != i {
			return fmt.Errorf("%w: event at %d has index %d", ErrIndexMismatch, i, d.events[i].Index)
		}
		if d.weights[i] != d.events[i].Weight {
			return fmt.Errorf("%w: weight mismatch at %d", ErrIndexMismatch, i)
		}
	}
	return nil
}

// Len returns the number of events.
func (d *Dataset) Len() int { return len(d.events) }

// Event returns the event at position i.
func (d *Dataset) Event(i int) *Event { return &d.events[i] }

// Events returns the backing event slice. Callers must not modify it.
func (d *Dataset) Events() []Event { return d.events }

// Weights returns the backing weight slice. Callers must not modify it.
func (d *Dataset) Weights() []float64 { return d.weights }

// WeightsIndexed returns the weights of the given events, in the given order.
func (d *Dataset) WeightsIndexed(indices []int) []float64 {
	out := make([]float64, len(indices))
	for i, idx := range indices {
		out[i] = d.weights[idx]
	}
	return out
}

// SumWeights returns the total event weight.
func (d *Dataset) SumWeights() float64 {
	return floats.Sum(d.weights)
}

// SumWeightsIndexed returns the total weight of the given events.
func (d *Dataset) SumWeightsIndexed(indices []int) float64 {
	return floats.Sum(d.WeightsIndexed(indices))
}

// SelectedIndices partitions event indices by pred. Both slices are ascending.
func (d *Dataset) SelectedIndices(pred func(*Event) bool) (selected, rejected []int) {
	for i := range d.events {
		if pred(&d.events[i]) {
			selected = append(selected, i)
		} else {
			rejected = append(rejected, i)
		}
	}
	return selected, rejected
}

// BinnedIndices groups event indices into nbins equal-width [lo, hi) bins of
// variable. Events below lo or at or above hi land in underflow and overflow.
func (d *Dataset) BinnedIndices(variable func(*Event) float64, lo, hi float64, nbins int) (bins [][]int, underflow, overflow []int, err error) {
	if nbins <= 0 || !(hi > lo) {
		return nil, nil, nil, fmt.Errorf("%w: [%g, %g) in %d bins", ErrEmptyRange, lo, hi, nbins)
	}
	bins = make([][]int, nbins)
	for i := range d.events {
		b, ok := BinIndex(variable(&d.events[i]), lo, hi, nbins)
		switch {
		case ok:
			bins[b] = append(bins[b], i)
		case b < 0:
			underflow = append(underflow, i)
		default:
			overflow = append(overflow, i)
		}
	}
	return bins, underflow, overflow, nil
}

// BinIndex returns the [lo, hi) bin holding v. When v is out of range ok is
// false and the index is -1 (below) or nbins (above or NaN).
func BinIndex(v, lo, hi float64, nbins int) (int, bool) {
	if v < lo {
		return -1, false
	}
	if !(v < hi) {
		return nbins, false
	}
	b := int((v - lo) / (hi - lo) * float64(nbins))
	if b >= nbins {
		b = nbins - 1
	}
	return b, true
}

// DaughterMass returns the invariant mass of the listed daughters of e.
// With no indices it uses the first two daughters.
func DaughterMass(e *Event, daughters ...int) float64 {
	if len(daughters) == 0 {
		daughters = []int{0, 1}
	}
	var p kinematics.FourMomentum
	for _, i := range daughters {
		p = p.Add(e.Daughters[i])
	}
	return p.M()
}

// SplitM bins events by the invariant mass of the listed daughters.
func (d *Dataset) SplitM(lo, hi float64, nbins int, daughters ...int) (bins [][]int, underflow, overflow []int, err error) {
	return d.BinnedIndices(func(e *Event) float64 { return DaughterMass(e, daughters...) }, lo, hi, nbins)
}

// BootstrapIndices draws Len indices with replacement from a seeded source
// and returns them sorted.
func (d *Dataset) BootstrapIndices(seed int64) []int {
	n := len(d.events)
	rng := utils.NewRandSource(seed)
	out := make([]int, n)
	for i := range out {
		out[i] = rng.Intn(n)
	}
	sort.Ints(out)
	return out
}
