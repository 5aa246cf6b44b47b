package utils

import (
	"sync"
	"testing"
)

func TestRandSourceRanges(t *testing.T) {
	rng := NewRandSource(12345)

	for i := 0; i < 100; i++ {
		if v := rng.Float64(); v < 0 || v >= 1 {
			t.Fatalf("Float64() returned value outside [0, 1): %f", v)
		}
		if v := rng.Intn(10); v < 0 || v >= 10 {
			t.Fatalf("Intn(10) returned value outside [0, 10): %d", v)
		}
	}
}

func TestDeterministicBehavior(t *testing.T) {
	a := NewRandSource(42)
	b := NewRandSource(42)
	for i := 0; i < 20; i++ {
		if a.Intn(1000) != b.Intn(1000) {
			t.Fatal("Expected identical sequences for identical seeds")
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	rng := NewRandSource(1)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = rng.Float64()
			}
		}()
	}
	wg.Wait()
}
