package likelihood

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ConvergenceStrategy inspects the NLL values seen so far by a minimization
// and reports whether it has stopped making progress.
type ConvergenceStrategy interface {
	// Check reports convergence and a human readable reason
	Check(history []float64) (bool, string)
	Name() string
}

// ConvergenceConfig holds the thresholds shared by the strategies.
type ConvergenceConfig struct {
	// Window is the number of evaluations a strategy looks back over
	Window int
	// Tolerance is the absolute NLL change still considered equal
	Tolerance float64
	// RelativeSpread is the largest stddev/|mean| the variance strategy accepts
	RelativeSpread float64
	// MinEvaluations is the number of evaluations before convergence can be detected
	MinEvaluations int
}

// DefaultConvergenceConfig returns a default convergence configuration
func DefaultConvergenceConfig() *ConvergenceConfig {
	return &ConvergenceConfig{
		Window:         200,
		Tolerance:      1e-6,
		RelativeSpread: 1e-9,
		MinEvaluations: 50,
	}
}

func (c *ConvergenceConfig) withDefaults() *ConvergenceConfig {
	d := DefaultConvergenceConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.Window <= 0 {
		out.Window = d.Window
	}
	if out.Tolerance <= 0 {
		out.Tolerance = d.Tolerance
	}
	if out.RelativeSpread <= 0 {
		out.RelativeSpread = d.RelativeSpread
	}
	if out.MinEvaluations < 0 {
		out.MinEvaluations = 0
	}
	return &out
}

// NoImprovementStrategy converges when the best NLL has not dropped by more
// than Tolerance for Window evaluations.
type NoImprovementStrategy struct {
	config *ConvergenceConfig
}

func NewNoImprovementStrategy(config *ConvergenceConfig) *NoImprovementStrategy {
	return &NoImprovementStrategy{config: config.withDefaults()}
}

func (s *NoImprovementStrategy) Name() string {
	return "no_improvement"
}

func (s *NoImprovementStrategy) Check(history []float64) (bool, string) {
	if len(history) < s.config.MinEvaluations || len(history) == 0 {
		return false, ""
	}

	best := math.Inf(1)
	lastImprovement := -1
	for i, v := range history {
		if v < best-s.config.Tolerance {
			best = v
			lastImprovement = i
		}
	}
	if lastImprovement < 0 {
		return false, ""
	}

	since := len(history) - 1 - lastImprovement
	if since >= s.config.Window {
		return true, fmt.Sprintf("no improvement for %d evaluations (best %.6g at evaluation %d)", since, best, lastImprovement)
	}
	return false, ""
}

// PlateauStrategy converges when the last Window values lie within Tolerance
// of each other.
type PlateauStrategy struct {
	config *ConvergenceConfig
}

func NewPlateauStrategy(config *ConvergenceConfig) *PlateauStrategy {
	return &PlateauStrategy{config: config.withDefaults()}
}

func (s *PlateauStrategy) Name() string {
	return "plateau"
}

func (s *PlateauStrategy) Check(history []float64) (bool, string) {
	if len(history) < s.config.MinEvaluations || len(history) < s.config.Window {
		return false, ""
	}

	recent := history[len(history)-s.config.Window:]
	spread := floats.Max(recent) - floats.Min(recent)
	if spread <= s.config.Tolerance {
		return true, fmt.Sprintf("nll plateaued for %d evaluations (range %.3g)", s.config.Window, spread)
	}
	return false, ""
}

// VarianceStrategy converges when the relative standard deviation of the
// last Window values falls below RelativeSpread.
type VarianceStrategy struct {
	config *ConvergenceConfig
}

func NewVarianceStrategy(config *ConvergenceConfig) *VarianceStrategy {
	return &VarianceStrategy{config: config.withDefaults()}
}

func (s *VarianceStrategy) Name() string {
	return "variance"
}

func (s *VarianceStrategy) Check(history []float64) (bool, string) {
	if len(history) < s.config.MinEvaluations || len(history) < s.config.Window || s.config.Window < 2 {
		return false, ""
	}

	recent := history[len(history)-s.config.Window:]
	mean := stat.Mean(recent, nil)
	if mean == 0 {
		return false, ""
	}
	rel := stat.StdDev(recent, nil) / math.Abs(mean)
	if rel < s.config.RelativeSpread {
		return true, fmt.Sprintf("low nll variance (relative stddev %.3g)", rel)
	}
	return false, ""
}

// CombinedStrategy converges as soon as any of its strategies does.
type CombinedStrategy struct {
	strategies []ConvergenceStrategy
}

func NewCombinedStrategy(config *ConvergenceConfig) *CombinedStrategy {
	return &CombinedStrategy{
		strategies: []ConvergenceStrategy{
			NewNoImprovementStrategy(config),
			NewPlateauStrategy(config),
			NewVarianceStrategy(config),
		},
	}
}

func (s *CombinedStrategy) Name() string {
	return "combined"
}

func (s *CombinedStrategy) Check(history []float64) (bool, string) {
	for _, strategy := range s.strategies {
		if converged, reason := strategy.Check(history); converged {
			return true, strategy.Name() + ": " + reason
		}
	}
	return false, ""
}

// AddStrategy appends a custom strategy.
func (s *CombinedStrategy) AddStrategy(strategy ConvergenceStrategy) {
	s.strategies = append(s.strategies, strategy)
}

// NewConvergenceStrategy returns the strategy registered under name.
func NewConvergenceStrategy(name string, config *ConvergenceConfig) (ConvergenceStrategy, error) {
	switch name {
	case "no_improvement":
		return NewNoImprovementStrategy(config), nil
	case "plateau":
		return NewPlateauStrategy(config), nil
	case "variance":
		return NewVarianceStrategy(config), nil
	case "", "combined":
		return NewCombinedStrategy(config), nil
	default:
		return nil, fmt.Errorf("unknown convergence strategy %q", name)
	}
}

// ConvergenceMonitor feeds evaluations to a strategy and calls onConverged
// once, the first time the strategy reports convergence. Non-finite values
// are ignored. It is safe for concurrent use.
type ConvergenceMonitor struct {
	mu          sync.Mutex
	strategy    ConvergenceStrategy
	history     []float64
	reason      string
	converged   bool
	onConverged func(reason string)
}

func NewConvergenceMonitor(strategy ConvergenceStrategy, onConverged func(reason string)) *ConvergenceMonitor {
	return &ConvergenceMonitor{strategy: strategy, onConverged: onConverged}
}

// Observe records one NLL value.
func (m *ConvergenceMonitor) Observe(nll float64) {
	if math.IsNaN(nll) || math.IsInf(nll, 0) {
		return
	}
	m.mu.Lock()
	if m.converged {
		m.mu.Unlock()
		return
	}
	m.history = append(m.history, nll)
	converged, reason := m.strategy.Check(m.history)
	if converged {
		m.converged = true
		m.reason = reason
	}
	m.mu.Unlock()

	if converged && m.onConverged != nil {
		m.onConverged(reason)
	}
}

// Converged reports whether convergence was detected and why.
func (m *ConvergenceMonitor) Converged() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.converged, m.reason
}
