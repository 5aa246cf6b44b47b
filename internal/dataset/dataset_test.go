package dataset

import (
	"errors"
	"math"
	"reflect"
	"sort"
	"testing"

	"github.com/GoSim-25-26J-441/amplitude-core/internal/kinematics"
)

func massEvent(w, m float64) Event {
	// two back-to-back massless daughters with total invariant mass m
	half := m / 2
	return Event{
		Weight: w,
		Daughters: []kinematics.FourMomentum{
			kinematics.New(half, 0, 0, half),
			kinematics.New(half, 0, 0, -half),
		},
	}
}

func TestNewAssignsIndices(t *testing.T) {
	events := []Event{{Index: 7, Weight: 1}, {Index: 7, Weight: 2}, {Index: 7, Weight: 3}}
	ds := New(events)

	if ds.Len() != 3 {
		t.Fatalf("Len = %d, want 3", ds.Len())
	}
	for i := 0; i < ds.Len(); i++ {
		if ds.Event(i).Index != i {
			t.Errorf("event %d has index %d", i, ds.Event(i).Index)
		}
	}
	if !reflect.DeepEqual(ds.Weights(), []float64{1, 2, 3}) {
		t.Errorf("Weights = %v", ds.Weights())
	}
	if events[0].Index != 7 {
		t.Error("New must not modify the caller's slice")
	}
	if err := ds.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateDetectsCorruption(t *testing.T) {
	ds := New([]Event{{Weight: 1}, {Weight: 1}})
	ds.events[1].Index = 0
	if err := ds.Validate(); !errors.Is(err, ErrIndexMismatch) {
		t.Errorf("Expected ErrIndexMismatch, got %v", err)
	}
}

func TestWeights(t *testing.T) {
	ds := New([]Event{{Weight: 0.5}, {Weight: 1.5}, {Weight: -0.25}})

	if got := ds.SumWeights(); got != 1.75 {
		t.Errorf("SumWeights = %f, want 1.75", got)
	}
	if got := ds.WeightsIndexed([]int{2, 0}); !reflect.DeepEqual(got, []float64{-0.25, 0.5}) {
		t.Errorf("WeightsIndexed = %v", got)
	}
	if got := ds.SumWeightsIndexed([]int{1, 1}); got != 3 {
		t.Errorf("SumWeightsIndexed = %f, want 3", got)
	}
}

func TestSelectedIndices(t *testing.T) {
	ds := New([]Event{{Weight: 1}, {Weight: -1}, {Weight: 2}, {Weight: -3}})
	sel, rej := ds.SelectedIndices(func(e *Event) bool { return e.Weight > 0 })

	if !reflect.DeepEqual(sel, []int{0, 2}) {
		t.Errorf("selected = %v", sel)
	}
	if !reflect.DeepEqual(rej, []int{1, 3}) {
		t.Errorf("rejected = %v", rej)
	}
}

func TestBinnedIndices(t *testing.T) {
	ds := New([]Event{{Weight: -1}, {Weight: 0}, {Weight: 0.5}, {Weight: 1}, {Weight: 1.999}, {Weight: 2}, {Weight: math.NaN()}})
	bins, under, over, err := ds.BinnedIndices(func(e *Event) float64 { return e.Weight }, 0, 2, 2)
	if err != nil {
		t.Fatalf("BinnedIndices: %v", err)
	}

	want := [][]int{{1, 2}, {3, 4}}
	if !reflect.DeepEqual(bins, want) {
		t.Errorf("bins = %v, want %v", bins, want)
	}
	if !reflect.DeepEqual(under, []int{0}) {
		t.Errorf("underflow = %v", under)
	}
	if !reflect.DeepEqual(over, []int{5, 6}) {
		t.Errorf("overflow = %v", over)
	}
}

func TestBinnedIndicesRejectsEmptyRange(t *testing.T) {
	ds := New([]Event{{Weight: 1}})
	tests := []struct {
		name   string
		lo, hi float64
		nbins  int
	}{
		{"zero bins", 0, 1, 0},
		{"inverted", 1, 0, 3},
		{"degenerate", 1, 1, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := ds.BinnedIndices(func(e *Event) float64 { return e.Weight }, tt.lo, tt.hi, tt.nbins)
			if !errors.Is(err, ErrEmptyRange) {
				t.Errorf("Expected ErrEmptyRange, got %v", err)
			}
		})
	}
}

func TestSplitM(t *testing.T) {
	ds := New([]Event{massEvent(1, 0.5), massEvent(1, 1.2), massEvent(1, 1.7), massEvent(1, 3)})
	bins, under, over, err := ds.SplitM(1, 2, 2)
	if err != nil {
		t.Fatalf("SplitM: %v", err)
	}
	if !reflect.DeepEqual(bins, [][]int{{1}, {2}}) {
		t.Errorf("bins = %v", bins)
	}
	if !reflect.DeepEqual(under, []int{0}) || !reflect.DeepEqual(over, []int{3}) {
		t.Errorf("underflow = %v, overflow = %v", under, over)
	}
}

func TestBootstrapIndices(t *testing.T) {
	ds := New(make([]Event, 50))

	a := ds.BootstrapIndices(11)
	b := ds.BootstrapIndices(11)
	if !reflect.DeepEqual(a, b) {
		t.Error("Expected identical draws for identical seeds")
	}
	if len(a) != 50 {
		t.Fatalf("len = %d, want 50", len(a))
	}
	if !sort.IntsAreSorted(a) {
		t.Error("Expected sorted indices")
	}
	for _, i := range a {
		if i < 0 || i >= 50 {
			t.Fatalf("index %d out of range", i)
		}
	}
	if len(New(nil).BootstrapIndices(1)) != 0 {
		t.Error("Expected no indices for an empty dataset")
	}
}
