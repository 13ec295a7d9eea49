package model

import (
	"encoding/json"
	"maps"
	"sync"

	"github.com/rotisserie/eris"
)

// Leads holds a page's incoming referral weights keyed by referring page id.
// Weights only ever grow.
type Leads struct {
	mu      sync.Mutex
	weights map[string]int64
}

// NewLeads returns an empty lead table.
func NewLeads() *Leads {
	return &Leads{weights: make(map[string]int64)}
}

// LeadsFrom builds a lead table from stored weights. Non-positive weights are
// rejected.
func LeadsFrom(weights map[string]int64) (*Leads, error) {
	l := NewLeads()
	for from, w := range weights {
		if w <= 0 {
			return nil, eris.Errorf("model: non-positive lead weight %d from %s", w, from)
		}
		l.weights[from] = w
	}
	return l, nil
}

// Record adds one referral from fromID and returns the new weight.
func (l *Leads) Record(fromID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.weights == nil {
		l.weights = make(map[string]int64)
	}
	l.weights[fromID]++
	return l.weights[fromID]
}

// Weight returns the weight for fromID; absent sources weigh zero.
func (l *Leads) Weight(fromID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.weights[fromID]
}

// Len returns the number of distinct referrers.
func (l *Leads) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.weights)
}

// Heaviest returns the referrer with the largest weight. Ties go to the
// lexicographically smallest id so the walk is reproducible.
func (l *Leads) Heaviest() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var (
		best  string
		top   int64
		found bool
	)
	for from, w := range l.weights {
		if !found || w > top || (w == top && from < best) {
			best, top, found = from, w, true
		}
	}
	return best, found
}

// Snapshot returns a copy of the weights.
func (l *Leads) Snapshot() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int64, len(l.weights))
	maps.Copy(out, l.weights)
	return out
}

func (l *Leads) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Snapshot())
}

func (l *Leads) UnmarshalJSON(data []byte) error {
	var weights map[string]int64
	if err := json.Unmarshal(data, &weights); err != nil {
		return eris.Wrap(err, "model: decode leads")
	}
	parsed, err := LeadsFrom(weights)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.weights = parsed.weights
	return nil
}
