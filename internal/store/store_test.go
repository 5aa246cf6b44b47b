package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/GoSim-25-26J-441/amplitude-core/internal/dataset"
	"github.com/GoSim-25-26J-441/amplitude-core/internal/kinematics"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/config"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/models"
)

func sampleDataset() *dataset.Dataset {
	return dataset.New([]dataset.Event{
		{
			Weight:    1.5,
			Beam:      kinematics.New(8.5, 0, 0, 8.5),
			Recoil:    kinematics.New(1.1, 0.1, -0.2, 0.3),
			Daughters: []kinematics.FourMomentum{kinematics.New(0.6, 0.1, 0.2, 0.3), kinematics.New(0.7, -0.1, -0.2, 0.1)},
			Eps:       r3.Vec{X: 0.3, Y: 0.4},
		},
		{Weight: -0.5},
	})
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	mem := NewMemoryStore()
	sqlite := NewSQLiteStore(filepath.Join(t.TempDir(), "ampcore.db"))
	stores := map[string]Store{"memory": mem, "sqlite": sqlite}
	for name, s := range stores {
		if err := s.Init(ctx); err != nil {
			t.Fatalf("%s init: %v", name, err)
		}
	}
	t.Cleanup(func() {
		_ = Close(sqlite)
	})
	return stores
}

func TestDatasetRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ds := sampleDataset()
			if err := s.SaveDataset(ctx, "data", ds); err != nil {
				t.Fatalf("save dataset: %v", err)
			}

			loaded, ok, err := s.GetDataset(ctx, "data")
			if err != nil || !ok {
				t.Fatalf("get dataset: ok=%v err=%v", ok, err)
			}
			if err := loaded.Validate(); err != nil {
				t.Fatalf("loaded dataset invalid: %v", err)
			}
			if loaded.Len() != 2 || loaded.SumWeights() != 1 {
				t.Fatalf("expected 2 events with weight sum 1, got %d and %v", loaded.Len(), loaded.SumWeights())
			}
			ev := loaded.Event(0)
			if ev.Beam.E != 8.5 || len(ev.Daughters) != 2 || ev.Daughters[1].E != 0.7 || ev.Eps.Y != 0.4 {
				t.Fatalf("event not preserved: %+v", ev)
			}

			if _, ok, err := s.GetDataset(ctx, "missing"); ok || err != nil {
				t.Fatalf("expected missing dataset, got ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestListDatasets(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.SaveDataset(ctx, "mc", dataset.New(make([]dataset.Event, 3))); err != nil {
				t.Fatal(err)
			}
			if err := s.SaveDataset(ctx, "data", sampleDataset()); err != nil {
				t.Fatal(err)
			}
			// Saving under an existing name replaces it.
			if err := s.SaveDataset(ctx, "mc", dataset.New(make([]dataset.Event, 4))); err != nil {
				t.Fatal(err)
			}

			infos, err := s.ListDatasets(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(infos) != 2 || infos[0].Name != "data" || infos[1].Name != "mc" {
				t.Fatalf("unexpected listing %+v", infos)
			}
			if infos[1].Events != 4 {
				t.Fatalf("expected replaced dataset with 4 events, got %d", infos[1].Events)
			}
			if infos[0].CreatedAt.IsZero() {
				t.Fatalf("expected creation time")
			}
		})
	}
}

func TestFitResultRoundTrip(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			results := []models.FitResult{
				{ID: "fit-b", SessionID: "s1", Status: models.FitStatusCompleted, Method: "bfgs", NLL: -12.5,
					Parameters: []float64{1, 2}, ParameterNames: []string{"a.value", "b.value"}, Evaluations: 40,
					Duration: 2 * time.Second, CreatedAt: base.Add(time.Minute)},
				{ID: "fit-a", SessionID: "s1", Status: models.FitStatusFailed, Error: "boom", CreatedAt: base},
				{ID: "fit-c", SessionID: "s2", Status: models.FitStatusCancelled, CreatedAt: base},
			}
			for _, r := range results {
				if err := s.SaveFitResult(ctx, r); err != nil {
					t.Fatalf("save fit result: %v", err)
				}
			}

			got, ok, err := s.GetFitResult(ctx, "fit-b")
			if err != nil || !ok {
				t.Fatalf("get fit result: ok=%v err=%v", ok, err)
			}
			if got.NLL != -12.5 || got.Parameters[1] != 2 || got.ParameterNames[0] != "a.value" || got.Duration != 2*time.Second {
				t.Fatalf("fit result not preserved: %+v", got)
			}
			if !got.CreatedAt.Equal(base.Add(time.Minute)) {
				t.Fatalf("expected created at %v, got %v", base.Add(time.Minute), got.CreatedAt)
			}

			s1, err := s.ListFitResults(ctx, "s1")
			if err != nil {
				t.Fatal(err)
			}
			if len(s1) != 2 || s1[0].ID != "fit-a" || s1[1].ID != "fit-b" {
				t.Fatalf("unexpected session listing %+v", s1)
			}
			all, err := s.ListFitResults(ctx, "")
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != 3 {
				t.Fatalf("expected 3 results, got %d", len(all))
			}

			if _, ok, err := s.GetFitResult(ctx, "missing"); ok || err != nil {
				t.Fatalf("expected missing fit result, got ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestUninitializedStores(t *testing.T) {
	ctx := context.Background()
	for name, s := range map[string]Store{"memory": NewMemoryStore(), "sqlite": NewSQLiteStore("unused.db")} {
		t.Run(name, func(t *testing.T) {
			if err := s.SaveDataset(ctx, "x", sampleDataset()); err == nil {
				t.Fatalf("expected error before Init")
			}
			if _, _, err := s.GetFitResult(ctx, "x"); err == nil {
				t.Fatalf("expected error before Init")
			}
		})
	}
}

func TestSQLiteRequiresPath(t *testing.T) {
	if err := NewSQLiteStore("").Init(context.Background()); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	first := NewSQLiteStore(path)
	if err := first.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if err := first.SaveDataset(ctx, "data", sampleDataset()); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second := NewSQLiteStore(path)
	if err := second.Init(ctx); err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	ds, ok, err := second.GetDataset(ctx, "data")
	if err != nil || !ok || ds.Len() != 2 {
		t.Fatalf("expected persisted dataset, got ok=%v err=%v", ok, err)
	}
}

func TestDecodeVersionMismatch(t *testing.T) {
	if _, err := DecodeDataset([]byte(`{"schema_version":2,"codec_version":1,"name":"x","events":[]}`)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
	if _, err := DecodeFitResult([]byte(`{"schema_version":1,"codec_version":0}`)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
	if _, err := DecodeDataset([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		cfg     config.StoreConfig
		want    string
		wantErr bool
	}{
		{config.StoreConfig{}, "memory", false},
		{config.StoreConfig{Driver: "memory"}, "memory", false},
		{config.StoreConfig{Driver: "sqlite", Path: "x.db"}, "sqlite", false},
		{config.StoreConfig{Driver: "postgres"}, "", true},
	}
	for _, tt := range tests {
		s, err := New(tt.cfg)
		if tt.wantErr {
			if err == nil {
				t.Errorf("New(%+v): expected error", tt.cfg)
			}
			continue
		}
		if err != nil {
			t.Fatalf("New(%+v): %v", tt.cfg, err)
		}
		switch s.(type) {
		case *MemoryStore:
			if tt.want != "memory" {
				t.Errorf("New(%+v) returned memory store", tt.cfg)
			}
		case *SQLiteStore:
			if tt.want != "sqlite" {
				t.Errorf("New(%+v) returned sqlite store", tt.cfg)
			}
		}
	}
}
