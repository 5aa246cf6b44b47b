package models

import (
	"math"
	"sync"
	"testing"
)

func TestFitStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status FitStatus
		want   bool
	}{
		{FitStatusIdle, false},
		{FitStatusPending, false},
		{FitStatusRunning, false},
		{FitStatusCompleted, true},
		{FitStatusFailed, true},
		{FitStatusCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestFitProgressKeepsBest(t *testing.T) {
	p := &FitProgress{}
	if _, _, ok := p.Best(); ok {
		t.Fatal("expected no best point before the first observation")
	}

	p.Observe([]float64{1, 2}, 10)
	p.Observe([]float64{3, 4}, 5)
	p.Observe([]float64{5, 6}, 7)

	nll, params, ok := p.Best()
	if !ok {
		t.Fatal("expected a best point")
	}
	if nll != 5 {
		t.Errorf("Expected best NLL 5, got %v", nll)
	}
	if params[0] != 3 || params[1] != 4 {
		t.Errorf("Expected best params [3 4], got %v", params)
	}
	if p.Evaluations() != 3 {
		t.Errorf("Expected 3 evaluations, got %d", p.Evaluations())
	}

	// The returned slice is a copy.
	params[0] = 99
	_, again, _ := p.Best()
	if again[0] != 3 {
		t.Errorf("Best params were aliased: %v", again)
	}
}

func TestFitProgressSkipsNonFinite(t *testing.T) {
	p := &FitProgress{}
	p.Observe([]float64{0}, math.Inf(1))
	p.Observe([]float64{1}, math.NaN())
	if _, _, ok := p.Best(); ok {
		t.Fatal("expected no best point from non-finite values")
	}
	p.Observe([]float64{2}, 4)
	if nll, _, _ := p.Best(); nll != 4 || p.Evaluations() != 3 {
		t.Errorf("Expected best 4 after 3 evaluations, got %v after %d", nll, p.Evaluations())
	}
}

func TestFitProgressCopiesInput(t *testing.T) {
	p := &FitProgress{}
	x := []float64{1}
	p.Observe(x, 1)
	x[0] = 42
	_, params, _ := p.Best()
	if params[0] != 1 {
		t.Errorf("Observe kept a reference to the caller's slice: %v", params)
	}
}

func TestFitProgressConcurrency(t *testing.T) {
	p := &FitProgress{}
	var wg sync.WaitGroup
	numGoroutines := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.Observe([]float64{float64(id)}, float64(numGoroutines-id))
		}(i)
	}
	wg.Wait()

	if p.Evaluations() != numGoroutines {
		t.Errorf("Expected %d evaluations, got %d", numGoroutines, p.Evaluations())
	}
	nll, params, _ := p.Best()
	if nll != 1 || params[0] != float64(numGoroutines-1) {
		t.Errorf("Expected best (1, [%d]), got (%v, %v)", numGoroutines-1, nll, params)
	}
}
