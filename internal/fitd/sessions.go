package fitd

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/amplitude-core/internal/amplitude"
	"github.com/GoSim-25-26J-441/amplitude-core/internal/likelihood"
	"github.com/GoSim-25-26J-441/amplitude-core/internal/metrics"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/models"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/utils"
)

// SessionRecord is one model bound to a data and a Monte Carlo dataset.
// The fit fields are guarded by the owning SessionStore.
type SessionRecord struct {
	ID         string
	CreatedAt  time.Time
	DataName   string
	MCName     string
	ModelYAML  string
	Model      *amplitude.Model
	Likelihood *likelihood.ExtendedLogLikelihood
	Collector  *metrics.Collector

	fit      *models.Fit
	progress *models.FitProgress
	done     chan struct{}
}

// SessionStore keeps open sessions in memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*SessionRecord
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*SessionRecord),
	}
}

// Add registers rec, generating an ID when it has none.
func (s *SessionStore) Add(rec *SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = utils.GenerateSessionID()
	}
	if strings.ContainsAny(rec.ID, "/:") {
		return fmt.Errorf("%w: session id cannot contain '/' or ':'", ErrInvalidRequest)
	}
	if _, exists := s.sessions[rec.ID]; exists {
		return fmt.Errorf("%w: %s", ErrSessionExists, rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.sessions[rec.ID] = rec
	metrics.SetSessions(len(s.sessions))
	return nil
}

func (s *SessionStore) Get(id string) (*SessionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	return rec, ok
}

// Delete removes a session and reports whether it existed.
func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	metrics.SetSessions(len(s.sessions))
	return true
}

// List returns up to limit sessions, oldest first.
func (s *SessionStore) List(limit int) []*SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	out := make([]*SessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// beginFit installs a new pending fit unless one is already active.
func (s *SessionStore) beginFit(id, method string) (*SessionRecord, *models.Fit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if rec.fit != nil && !rec.fit.Status.IsTerminal() {
		return nil, nil, fmt.Errorf("%w: %s", ErrFitRunning, id)
	}
	rec.fit = &models.Fit{
		ID:        utils.GenerateFitID(),
		Status:    models.FitStatusRunning,
		Method:    method,
		StartTime: time.Now().UTC(),
	}
	rec.progress = &models.FitProgress{}
	rec.done = make(chan struct{})
	fit := *rec.fit
	return rec, &fit, nil
}

// finishFit moves the active fit to a terminal status once. It reports
// false when the fit had already finished.
func (s *SessionStore) finishFit(id string, status models.FitStatus, reason, errMsg string) (models.Fit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok || rec.fit == nil || rec.fit.Status.IsTerminal() {
		return models.Fit{}, false
	}
	fit := rec.fit
	fit.Status = status
	fit.StopReason = reason
	fit.Error = errMsg
	fit.EndTime = time.Now().UTC()
	fit.Duration = fit.EndTime.Sub(fit.StartTime)
	fit.Evaluations = rec.progress.Evaluations()
	if nll, params, ok := rec.progress.Best(); ok {
		fit.BestNLL = nll
		fit.BestParams = params
	}
	close(rec.done)
	return *fit, true
}

// Fit returns a snapshot of the session's latest fit with live progress.
func (s *SessionStore) Fit(id string) (*models.Fit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if rec.fit == nil {
		return &models.Fit{Status: models.FitStatusIdle}, nil
	}
	fit := *rec.fit
	if !fit.Status.IsTerminal() {
		fit.Evaluations = rec.progress.Evaluations()
		if nll, params, ok := rec.progress.Best(); ok {
			fit.BestNLL = nll
			fit.BestParams = params
		}
		fit.Duration = time.Since(fit.StartTime)
	}
	fit.History = rec.Collector.Summary()
	return &fit, nil
}

// withIdle runs fn while no fit is active on the session. Fits cannot
// start until fn returns.
func (s *SessionStore) withIdle(id string, fn func(rec *SessionRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if rec.fit != nil && !rec.fit.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrFitRunning, id)
	}
	return fn(rec)
}

func (s *SessionStore) doneChan(id string) (<-chan struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if rec.done == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoFit, id)
	}
	return rec.done, nil
}
