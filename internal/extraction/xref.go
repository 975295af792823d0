package extraction

import (
	"time"
)

// Observation is one (value, source, confidence) triple recorded in the
// cross-reference index.
type Observation struct {
	Value       float64   `json:"value"`
	Source      string    `json:"source"`
	Confidence  float64   `json:"confidence"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// CrossRef is the session's append-only cross-reference index: a multimap
// from (record key, field path) to every observed value. Entries are never
// pruned or rewritten within a session.
type CrossRef struct {
	entries map[string][]Observation
	keys    []string // insertion order, for deterministic iteration
}

// NewCrossRef creates an empty index.
func NewCrossRef() *CrossRef {
	return &CrossRef{entries: make(map[string][]Observation)}
}

func xrefKey(recordKey, fieldPath string) string {
	return recordKey + "#" + fieldPath
}

// Add appends an observation and returns the full entry list for the key.
func (x *CrossRef) Add(recordKey, fieldPath string, obs Observation) []Observation {
	k := xrefKey(recordKey, fieldPath)
	if _, ok := x.entries[k]; !ok {
		x.keys = append(x.keys, k)
	}
	x.entries[k] = append(x.entries[k], obs)
	return x.entries[k]
}

// Get returns the observations recorded for a key.
func (x *CrossRef) Get(recordKey, fieldPath string) []Observation {
	return x.entries[xrefKey(recordKey, fieldPath)]
}

// Len returns the number of distinct (record key, field path) entries.
func (x *CrossRef) Len() int {
	return len(x.entries)
}

// Each visits every entry in insertion order.
func (x *CrossRef) Each(fn func(key string, obs []Observation)) {
	for _, k := range x.keys {
		fn(k, x.entries[k])
	}
}
