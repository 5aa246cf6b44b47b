package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/amplitude-core/internal/dataset"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/models"
)

var errNotInitialized = errors.New("store is not initialized")

type storedDataset struct {
	ds   *dataset.Dataset
	info models.DatasetInfo
}

// MemoryStore keeps everything in process memory. Datasets are immutable,
// so stored pointers are handed out directly.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	datasets    map[string]storedDataset
	fits        map[string]models.FitResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.datasets = make(map[string]storedDataset)
	s.fits = make(map[string]models.FitResult)
	return nil
}

func (s *MemoryStore) SaveDataset(_ context.Context, name string, ds *dataset.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}

	s.datasets[name] = storedDataset{
		ds: ds,
		info: models.DatasetInfo{
			Name:       name,
			Events:     ds.Len(),
			SumWeights: ds.SumWeights(),
			CreatedAt:  time.Now().UTC(),
		},
	}
	return nil
}

func (s *MemoryStore) GetDataset(_ context.Context, name string) (*dataset.Dataset, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, false, errNotInitialized
	}

	stored, ok := s.datasets[name]
	return stored.ds, ok, nil
}

func (s *MemoryStore) ListDatasets(_ context.Context) ([]models.DatasetInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, errNotInitialized
	}

	out := make([]models.DatasetInfo, 0, len(s.datasets))
	for _, stored := range s.datasets {
		out = append(out, stored.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) SaveFitResult(_ context.Context, result models.FitResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}

	result.Parameters = append([]float64(nil), result.Parameters...)
	result.ParameterNames = append([]string(nil), result.ParameterNames...)
	s.fits[result.ID] = result
	return nil
}

func (s *MemoryStore) GetFitResult(_ context.Context, id string) (models.FitResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return models.FitResult{}, false, errNotInitialized
	}

	result, ok := s.fits[id]
	return result, ok, nil
}

func (s *MemoryStore) ListFitResults(_ context.Context, sessionID string) ([]models.FitResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, errNotInitialized
	}

	var out []models.FitResult
	for _, r := range s.fits {
		if sessionID == "" || r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	sortFits(out)
	return out, nil
}

func sortFits(rs []models.FitResult) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}
