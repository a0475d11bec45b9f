package syncer

import (
	"fmt"
	"sync"
	"time"
)

// ScopeKind identifies which entity scope a sync outcome belongs to.
type ScopeKind string

const (
	ScopeRegions ScopeKind = "regions"
	ScopeZones   ScopeKind = "zones"
	ScopeImages  ScopeKind = "images"
)

// ScopeResult is the outcome of one scoped sync: the region replace, or
// one region's zone or image refresh. Failures here degrade freshness of
// that scope only and never fail the preload as a whole.
type ScopeResult struct {
	Region string    `json:"region,omitempty"`
	Kind   ScopeKind `json:"kind"`
	Count  int       `json:"count"`
	Err    error     `json:"-"`
}

// Failed reports whether this scope's sync failed.
func (r ScopeResult) Failed() bool {
	return r.Err != nil
}

// Report is the aggregate outcome of one full preload run. Per-scope
// failures are carried as typed results rather than discarded, so a
// partially degraded run can be diagnosed without re-reading logs.
type Report struct {
	RunID         string        `json:"run_id"`
	DefaultRegion string        `json:"default_region"`
	RegionCount   int           `json:"region_count"`
	StaleMarked   int64         `json:"stale_marked"`
	InstancePages int           `json:"instance_pages"`
	InstanceCount int           `json:"instance_count"`
	Duration      time.Duration `json:"duration"`

	mu     sync.Mutex
	scopes []ScopeResult
}

// addScope records a scope outcome. Safe for concurrent workers.
func (r *Report) addScope(res ScopeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopes = append(r.scopes, res)
}

// Scopes returns a copy of all recorded scope outcomes.
func (r *Report) Scopes() []ScopeResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ScopeResult, len(r.scopes))
	copy(out, r.scopes)
	return out
}

// Degraded returns the scope outcomes that failed.
func (r *Report) Degraded() []ScopeResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ScopeResult
	for _, res := range r.scopes {
		if res.Failed() {
			out = append(out, res)
		}
	}
	return out
}

// Summary renders a one-line outcome for the control endpoint response.
func (r *Report) Summary() string {
	degraded := len(r.Degraded())
	if degraded == 0 {
		return fmt.Sprintf("synced %d regions, %d instances", r.RegionCount, r.InstanceCount)
	}
	return fmt.Sprintf("synced %d regions, %d instances (%d scopes degraded)",
		r.RegionCount, r.InstanceCount, degraded)
}
