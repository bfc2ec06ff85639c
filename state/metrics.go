package state

import "github.com/encodeous/metric"

// MetricSink is the capability interface every component that wants to
// record a counter or histogram depends on, rather than reaching for a
// global registry (SPEC_FULL.md §4 "Recovered from original_source").
type MetricSink interface {
	Counter(name string) Adder
	Histogram(name string) Adder
}

// Adder is satisfied by both *metric.Counter and *metric.Histogram --
// both expose Add(float64) in the teacher's own usage.
type Adder interface {
	Add(float64)
}

// EncodeousMetricSink is the concrete MetricSink backed by
// encodeous/metric, mirroring the teacher's perf package but keyed by
// name instead of package-level vars so each area/engine gets its own
// independently labeled set of series.
type EncodeousMetricSink struct {
	prefix     string
	counters   map[string]metric.Metric
	histograms map[string]metric.Metric
}

// NewEncodeousMetricSink constructs a sink whose series names are all
// prefixed with prefix (e.g. the area name), so multiple areas don't
// collide on the same expvar-style series.
func NewEncodeousMetricSink(prefix string) *EncodeousMetricSink {
	return &EncodeousMetricSink{
		prefix:     prefix,
		counters:   make(map[string]metric.Metric),
		histograms: make(map[string]metric.Metric),
	}
}

func (s *EncodeousMetricSink) Counter(name string) Adder {
	key := s.prefix + "." + name
	c, ok := s.counters[key]
	if !ok {
		c = metric.NewCounter("10s1s")
		s.counters[key] = c
	}
	return c
}

func (s *EncodeousMetricSink) Histogram(name string) Adder {
	key := s.prefix + "." + name
	h, ok := s.histograms[key]
	if !ok {
		h = metric.NewHistogram("1m1s")
		s.histograms[key] = h
	}
	return h
}

// NoopMetricSink discards everything. Used by tests and by any
// component constructed without a configured metrics backend.
type NoopMetricSink struct{}

type noopAdder struct{}

func (noopAdder) Add(float64) {}

func (NoopMetricSink) Counter(string) Adder   { return noopAdder{} }
func (NoopMetricSink) Histogram(string) Adder { return noopAdder{} }
