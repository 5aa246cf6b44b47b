package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/GoSim-25-26J-441/amplitude-core/pkg/models"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/utils"
)

// Collector keeps labelled time series recorded while a fit runs
// (NLL per evaluation, evaluation latency) and aggregates them on demand.
type Collector struct {
	mu sync.RWMutex

	startTime time.Time
	endTime   time.Time

	// metric name -> label key -> points
	series map[string]map[string][]*models.MetricPoint
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		series:    make(map[string]map[string][]*models.MetricPoint),
	}
}

// Start marks the start of metric collection
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()
	c.endTime = time.Time{}
}

// Stop marks the end of metric collection
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endTime = time.Now()
}

// Record records a metric value at a specific timestamp
func (c *Collector) Record(name string, value float64, timestamp time.Time, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := labelKey(labels)
	byLabel := c.series[name]
	if byLabel == nil {
		byLabel = make(map[string][]*models.MetricPoint)
		c.series[name] = byLabel
	}
	byLabel[key] = append(byLabel[key], &models.MetricPoint{
		Timestamp: timestamp,
		Name:      name,
		Value:     value,
		Labels:    copyLabels(labels),
	})
}

// RecordNow records a metric value at the current time
func (c *Collector) RecordNow(name string, value float64, labels map[string]string) {
	c.Record(name, value, time.Now(), labels)
}

// TimeSeries returns a copy of the points recorded for a metric and label set
func (c *Collector) TimeSeries(name string, labels map[string]string) []*models.MetricPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	points := c.series[name][labelKey(labels)]
	if len(points) == 0 {
		return nil
	}
	out := make([]*models.MetricPoint, len(points))
	for i, p := range points {
		cp := *p
		cp.Labels = copyLabels(p.Labels)
		out[i] = &cp
	}
	return out
}

// Aggregation aggregates one metric and label set. It returns nil when
// nothing was recorded.
func (c *Collector) Aggregation(name string, labels map[string]string) *models.Aggregation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return aggregate(values(c.series[name][labelKey(labels)]))
}

// Last returns the most recent value of a metric across all label sets.
func (c *Collector) Last(name string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var last *models.MetricPoint
	for _, points := range c.series[name] {
		if n := len(points); n > 0 && (last == nil || !points[n-1].Timestamp.Before(last.Timestamp)) {
			last = points[n-1]
		}
	}
	if last == nil {
		return 0, false
	}
	return last.Value, true
}

// Summary returns every metric's values and its aggregation across all
// label sets. Non-finite values are listed but left out of aggregations.
func (c *Collector) Summary() *models.MetricsSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	end := c.endTime
	if end.IsZero() {
		end = time.Now()
	}
	summary := &models.MetricsSummary{
		StartTime:    c.startTime,
		EndTime:      c.endTime,
		Duration:     end.Sub(c.startTime),
		Metrics:      make(map[string][]float64, len(c.series)),
		Aggregations: make(map[string]*models.Aggregation, len(c.series)),
	}
	for name, byLabel := range c.series {
		var all []float64
		for _, key := range sortedKeys(byLabel) {
			all = append(all, values(byLabel[key])...)
		}
		summary.Metrics[name] = all
		if agg := aggregate(all); agg != nil {
			summary.Aggregations[name] = agg
		}
	}
	return summary
}

// MetricNames returns the recorded metric names in lexical order
func (c *Collector) MetricNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.series))
	for name := range c.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LabelsForMetric returns all label combinations recorded for a metric
func (c *Collector) LabelsForMetric(name string) []map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byLabel := c.series[name]
	out := make([]map[string]string, 0, len(byLabel))
	for _, key := range sortedKeys(byLabel) {
		if points := byLabel[key]; len(points) > 0 {
			out = append(out, copyLabels(points[0].Labels))
		}
	}
	return out
}

// Clear clears all collected metrics
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.series = make(map[string]map[string][]*models.MetricPoint)
	c.startTime = time.Now()
	c.endTime = time.Time{}
}

func values(points []*models.MetricPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

// aggregate summarizes the finite entries of vs.
func aggregate(vs []float64) *models.Aggregation {
	finite := make([]float64, 0, len(vs))
	for _, v := range vs {
		if utils.IsFinite(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return nil
	}
	sort.Float64s(finite)
	agg := &models.Aggregation{
		Count: int64(len(finite)),
		Sum:   floats.Sum(finite),
		Min:   floats.Min(finite),
		Max:   floats.Max(finite),
		Mean:  stat.Mean(finite, nil),
		P50:   stat.Quantile(0.50, stat.LinInterp, finite, nil),
		P95:   stat.Quantile(0.95, stat.LinInterp, finite, nil),
		P99:   stat.Quantile(0.99, stat.LinInterp, finite, nil),
	}
	if len(finite) > 1 {
		agg.StdDev = stat.StdDev(finite, nil)
	}
	return agg
}

// labelKey creates a key from labels for map lookup
func labelKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}

func sortedKeys(m map[string][]*models.MetricPoint) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
