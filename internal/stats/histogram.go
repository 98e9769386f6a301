package stats

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Percentiles summarises a latency distribution in milliseconds.
type Percentiles struct {
	Count int64   `json:"count"`
	P50   float64 `json:"p50_ms"`
	P90   float64 `json:"p90_ms"`
	P99   float64 `json:"p99_ms"`
	Max   float64 `json:"max_ms"`
}

// LatencySet keeps one histogram per operation kind.
// It is not safe for concurrent use: each agent owns its own set and the
// sets are merged once the agents have stopped.
type LatencySet struct {
	hists map[string]*hdrhistogram.Histogram
}

func NewLatencySet() *LatencySet {
	return &LatencySet{hists: make(map[string]*hdrhistogram.Histogram)}
}

func newHistogram() *hdrhistogram.Histogram {
	// 1us to 10min, 3 significant figures
	return hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3)
}

// Record adds a latency sample for the named kind.
func (s *LatencySet) Record(kind string, d time.Duration) {
	h, ok := s.hists[kind]
	if !ok {
		h = newHistogram()
		s.hists[kind] = h
	}
	us := d.Microseconds()
	if us < 1 {
		us = 1
	}
	// values above the trackable range are dropped by the histogram
	_ = h.RecordValue(us)
}

// Merge folds other into s.
func (s *LatencySet) Merge(other *LatencySet) {
	for kind, oh := range other.hists {
		h, ok := s.hists[kind]
		if !ok {
			h = newHistogram()
			s.hists[kind] = h
		}
		h.Merge(oh)
	}
}

// Percentiles returns the distribution of the named kind.
func (s *LatencySet) Percentiles(kind string) Percentiles {
	h, ok := s.hists[kind]
	if !ok || h.TotalCount() == 0 {
		return Percentiles{}
	}
	return Percentiles{
		Count: h.TotalCount(),
		P50:   float64(h.ValueAtQuantile(50)) / 1000.0,
		P90:   float64(h.ValueAtQuantile(90)) / 1000.0,
		P99:   float64(h.ValueAtQuantile(99)) / 1000.0,
		Max:   float64(h.Max()) / 1000.0,
	}
}
