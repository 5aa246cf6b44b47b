package metrics

import (
	"math"
	"testing"
	"time"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c == nil {
		t.Fatalf("expected non-nil collector")
	}
	if len(c.MetricNames()) != 0 {
		t.Fatalf("expected no metrics, got %v", c.MetricNames())
	}
}

func TestCollectorRecordAndTimeSeries(t *testing.T) {
	c := NewCollector()
	c.Start()

	now := time.Now()
	c.Record(MetricNLL, 10.0, now, nil)
	c.Record(MetricNLL, 20.0, now.Add(time.Second), nil)
	c.Record(MetricNLL, 30.0, now.Add(2*time.Second), nil)

	points := c.TimeSeries(MetricNLL, nil)
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	for i, want := range []float64{10, 20, 30} {
		if points[i].Value != want {
			t.Fatalf("point %d: expected %f, got %f", i, want, points[i].Value)
		}
	}

	points[0].Value = -1
	if c.TimeSeries(MetricNLL, nil)[0].Value != 10 {
		t.Fatalf("TimeSeries returned stored points instead of copies")
	}
}

func TestCollectorRecordWithLabels(t *testing.T) {
	c := NewCollector()
	labels := map[string]string{"session": "s1", "dataset": "data"}

	c.RecordNow(MetricEvaluationLatency, 10.0, labels)
	labels["session"] = "mutated"

	points := c.TimeSeries(MetricEvaluationLatency, map[string]string{"dataset": "data", "session": "s1"})
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	if points[0].Labels["session"] != "s1" {
		t.Fatalf("expected session label s1, got %s", points[0].Labels["session"])
	}
	if c.TimeSeries(MetricEvaluationLatency, nil) != nil {
		t.Fatalf("expected no unlabelled points")
	}
}

func TestCollectorAggregation(t *testing.T) {
	c := NewCollector()
	now := time.Now()
	for i, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		c.Record(MetricNLL, v, now.Add(time.Duration(i)*time.Second), nil)
	}

	agg := c.Aggregation(MetricNLL, nil)
	if agg == nil {
		t.Fatalf("expected aggregation")
	}
	if agg.Count != 8 {
		t.Errorf("expected count 8, got %d", agg.Count)
	}
	if agg.Sum != 40 || agg.Mean != 5 {
		t.Errorf("expected sum 40 mean 5, got %f %f", agg.Sum, agg.Mean)
	}
	if agg.Min != 2 || agg.Max != 9 {
		t.Errorf("expected min 2 max 9, got %f %f", agg.Min, agg.Max)
	}
	// sample standard deviation
	if want := math.Sqrt(32.0 / 7.0); math.Abs(agg.StdDev-want) > 1e-12 {
		t.Errorf("expected stddev %f, got %f", want, agg.StdDev)
	}
	// empirical CDF interpolation
	quantiles := []struct {
		name      string
		got, want float64
	}{
		{"p50", agg.P50, 4},
		{"p95", agg.P95, 8.2},
		{"p99", agg.P99, 8.84},
	}
	for _, q := range quantiles {
		if math.Abs(q.got-q.want) > 1e-12 {
			t.Errorf("expected %s %f, got %f", q.name, q.want, q.got)
		}
	}
}

func TestCollectorAggregationSkipsNonFinite(t *testing.T) {
	c := NewCollector()
	c.RecordNow(MetricNLL, math.Inf(1), nil)
	c.RecordNow(MetricNLL, 3, nil)
	c.RecordNow(MetricNLL, math.NaN(), nil)

	agg := c.Aggregation(MetricNLL, nil)
	if agg == nil || agg.Count != 1 || agg.Mean != 3 || agg.StdDev != 0 {
		t.Fatalf("expected single finite value 3, got %+v", agg)
	}

	c.Clear()
	c.RecordNow(MetricNLL, math.NaN(), nil)
	if c.Aggregation(MetricNLL, nil) != nil {
		t.Fatalf("expected nil aggregation for all non-finite values")
	}
}

func TestCollectorEmptyAggregation(t *testing.T) {
	c := NewCollector()
	if agg := c.Aggregation("missing", nil); agg != nil {
		t.Fatalf("expected nil aggregation, got %+v", agg)
	}
}

func TestCollectorLast(t *testing.T) {
	c := NewCollector()
	if _, ok := c.Last(MetricNLL); ok {
		t.Fatalf("expected no last value")
	}
	now := time.Now()
	c.Record(MetricNLL, 1, now, map[string]string{"session": "a"})
	c.Record(MetricNLL, 2, now.Add(time.Second), map[string]string{"session": "b"})
	c.Record(MetricNLL, 3, now.Add(-time.Second), map[string]string{"session": "a"})

	// Last follows the newest tail across label sets.
	if v, ok := c.Last(MetricNLL); !ok || v != 2 {
		t.Fatalf("expected last value 2, got %v %v", v, ok)
	}
}

func TestCollectorSummary(t *testing.T) {
	c := NewCollector()
	c.Start()
	c.RecordNow(MetricNLL, 10, map[string]string{"session": "a"})
	c.RecordNow(MetricNLL, 20, map[string]string{"session": "b"})
	c.RecordNow(MetricEventsEvaluated, 100, nil)
	c.Stop()

	summary := c.Summary()
	if len(summary.Metrics[MetricNLL]) != 2 {
		t.Fatalf("expected 2 nll values, got %v", summary.Metrics[MetricNLL])
	}
	if agg := summary.Aggregations[MetricNLL]; agg == nil || agg.Mean != 15 {
		t.Fatalf("expected nll mean 15, got %+v", agg)
	}
	if summary.Duration < 0 {
		t.Fatalf("expected non-negative duration, got %v", summary.Duration)
	}
}

func TestCollectorMetricNamesAndLabels(t *testing.T) {
	c := NewCollector()
	c.RecordNow(MetricNLL, 1, map[string]string{"session": "b"})
	c.RecordNow(MetricNLL, 1, map[string]string{"session": "a"})
	c.RecordNow(MetricEvaluationLatency, 1, nil)

	names := c.MetricNames()
	if len(names) != 2 || names[0] != MetricEvaluationLatency || names[1] != MetricNLL {
		t.Fatalf("unexpected metric names %v", names)
	}

	labels := c.LabelsForMetric(MetricNLL)
	if len(labels) != 2 || labels[0]["session"] != "a" || labels[1]["session"] != "b" {
		t.Fatalf("unexpected labels %v", labels)
	}
	if got := c.LabelsForMetric("missing"); len(got) != 0 {
		t.Fatalf("expected no labels, got %v", got)
	}
}

func TestCollectorClear(t *testing.T) {
	c := NewCollector()
	c.RecordNow(MetricNLL, 1, nil)
	c.Clear()
	if len(c.MetricNames()) != 0 {
		t.Fatalf("expected empty collector after Clear")
	}
}

func TestLabelKeyIsOrderIndependent(t *testing.T) {
	a := labelKey(map[string]string{"x": "1", "y": "2"})
	b := labelKey(map[string]string{"y": "2", "x": "1"})
	if a != b {
		t.Fatalf("label keys differ: %q %q", a, b)
	}
	if labelKey(nil) != "" {
		t.Fatalf("expected empty key for nil labels")
	}
}
