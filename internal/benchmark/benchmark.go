// Package benchmark holds industry benchmark ranges for facility metrics,
// used to sanity-check extracted values and to anchor benchmark-aligned
// conflict resolution.
package benchmark

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Range is the expected band for one metric field path.
type Range struct {
	Metric string  `yaml:"metric"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
	Median float64 `yaml:"median"`
	Unit   string  `yaml:"unit,omitempty"`
}

// Width returns the band width.
func (r Range) Width() float64 {
	return r.Max - r.Min
}

// Contains reports whether v falls inside the band.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Table indexes benchmark ranges by metric field path.
type Table struct {
	ranges map[string]Range
}

// Load reads a benchmark table from a YAML file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "benchmark: read %s", path)
	}
	var ranges []Range
	if err := yaml.Unmarshal(data, &ranges); err != nil {
		return nil, eris.Wrap(err, "benchmark: unmarshal")
	}
	return New(ranges), nil
}

// New builds a table from explicit ranges.
func New(ranges []Range) *Table {
	t := &Table{ranges: make(map[string]Range, len(ranges))}
	for _, r := range ranges {
		t.ranges[r.Metric] = r
	}
	return t
}

// Default returns skilled-nursing benchmark bands used when no table file is
// configured. Margins are fractions, occupancy is a percentage.
func Default() *Table {
	return New([]Range{
		{Metric: "metrics.ebitdar_margin", Min: 0.05, Max: 0.30, Median: 0.15},
		{Metric: "metrics.ebitda_margin", Min: 0.00, Max: 0.22, Median: 0.10},
		{Metric: "metrics.noi_margin", Min: 0.00, Max: 0.22, Median: 0.10},
		{Metric: "census.occupancy", Min: 70, Max: 98, Median: 85},
		{Metric: "expenses.labor.agency_share", Min: 0, Max: 0.25, Median: 0.05},
	})
}

// For returns the range for a metric field path.
func (t *Table) For(metric string) (Range, bool) {
	r, ok := t.ranges[metric]
	return r, ok
}
