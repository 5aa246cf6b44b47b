// Package store persists uploaded datasets and finished fit results.
package store

import (
	"context"
	"fmt"

	"github.com/GoSim-25-26J-441/amplitude-core/internal/dataset"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/config"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/models"
)

// Store defines the persistence operations used by the fit service.
// Getters report a missing record through the bool result.
type Store interface {
	Init(ctx context.Context) error
	SaveDataset(ctx context.Context, name string, ds *dataset.Dataset) error
	GetDataset(ctx context.Context, name string) (*dataset.Dataset, bool, error)
	ListDatasets(ctx context.Context) ([]models.DatasetInfo, error)
	SaveFitResult(ctx context.Context, result models.FitResult) error
	GetFitResult(ctx context.Context, id string) (models.FitResult, bool, error)
	ListFitResults(ctx context.Context, sessionID string) ([]models.FitResult, error)
}

// New returns an uninitialized store for the configured driver.
func New(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

// Close closes stores that hold external resources.
func Close(s Store) error {
	closer, ok := s.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
