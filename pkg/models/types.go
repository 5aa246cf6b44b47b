package models

import (
	"math"
	"sync"
	"time"
)

// FitStatus represents the status of a fit session's minimization
type FitStatus string

const (
	FitStatusIdle      FitStatus = "idle"
	FitStatusPending   FitStatus = "pending"
	FitStatusRunning   FitStatus = "running"
	FitStatusCompleted FitStatus = "completed"
	FitStatusFailed    FitStatus = "failed"
	FitStatusCancelled FitStatus = "cancelled"
)

// IsTerminal reports whether a fit in this status has finished
func (s FitStatus) IsTerminal() bool {
	return s == FitStatusCompleted || s == FitStatusFailed || s == FitStatusCancelled
}

// DatasetInfo describes a stored dataset without its events
type DatasetInfo struct {
	Name       string    `json:"name"`
	Events     int       `json:"events"`
	SumWeights float64   `json:"sum_weights"`
	CreatedAt  time.Time `json:"created_at"`
}

// Session describes a fit session: a model bound to a data and a Monte Carlo dataset
type Session struct {
	ID             string            `json:"id"`
	DataDataset    string            `json:"data_dataset"`
	MCDataset      string            `json:"mc_dataset"`
	Model          string            `json:"model"`
	Amplitudes     int               `json:"amplitudes"`
	FreeParameters []string          `json:"free_parameters"`
	CreatedAt      time.Time         `json:"created_at"`
	Fit            *Fit              `json:"fit,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Fit is the state of a session's most recent minimization
type Fit struct {
	ID          string          `json:"id"`
	Status      FitStatus       `json:"status"`
	Method      string          `json:"method"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time,omitempty"`
	Duration    time.Duration   `json:"duration,omitempty"`
	Evaluations int             `json:"evaluations"`
	BestNLL     float64         `json:"best_nll"`
	BestParams  []float64       `json:"best_params,omitempty"`
	History     *MetricsSummary `json:"history,omitempty"`
	StopReason  string          `json:"stop_reason,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// FitResult is the persisted outcome of a finished fit
type FitResult struct {
	ID             string        `json:"id"`
	SessionID      string        `json:"session_id"`
	Status         FitStatus     `json:"status"`
	Method         string        `json:"method"`
	NLL            float64       `json:"nll"`
	Parameters     []float64     `json:"parameters"`
	ParameterNames []string      `json:"parameter_names"`
	Evaluations    int           `json:"evaluations"`
	Duration       time.Duration `json:"duration"`
	StopReason     string        `json:"stop_reason,omitempty"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// FitProgress tracks the best point seen so far during a minimization (thread-safe)
type FitProgress struct {
	mu          sync.RWMutex
	evaluations int
	bestNLL     float64
	bestParams  []float64
	seen        bool
}

// Observe records one evaluation and keeps it if it improves the best NLL.
// Non-finite values are counted but never become the best point.
func (p *FitProgress) Observe(x []float64, nll float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evaluations++
	if math.IsNaN(nll) || math.IsInf(nll, 0) {
		return
	}
	if !p.seen || nll < p.bestNLL {
		p.seen = true
		p.bestNLL = nll
		p.bestParams = append(p.bestParams[:0], x...)
	}
}

// Best returns the best NLL and a copy of its parameters. ok is false before
// the first observation.
func (p *FitProgress) Best() (nll float64, params []float64, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.seen {
		return 0, nil, false
	}
	params = make([]float64, len(p.bestParams))
	copy(params, p.bestParams)
	return p.bestNLL, params, true
}

// Evaluations returns the number of observations (thread-safe)
func (p *FitProgress) Evaluations() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.evaluations
}

// MetricPoint represents a single metric data point
type MetricPoint struct {
	Timestamp time.Time         `json:"timestamp"`
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// MetricsSummary represents a summary of collected metrics
type MetricsSummary struct {
	StartTime    time.Time               `json:"start_time"`
	EndTime      time.Time               `json:"end_time"`
	Duration     time.Duration           `json:"duration"`
	Metrics      map[string][]float64    `json:"metrics"` // metric name -> values
	Aggregations map[string]*Aggregation `json:"aggregations,omitempty"`
}

// Aggregation represents aggregated statistics for a metric
type Aggregation struct {
	Count  int64   `json:"count"`
	Sum    float64 `json:"sum"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}
