package assign

import "sync"

// RunStats summarizes one solver invocation for the admin metrics endpoint.
type RunStats struct {
	RunID       string
	Status      string
	SlotCount   int
	FilledCount int
	Unresolved  int
	Unfillable  int
	Objective   float64
	DurationMs  int64
}

var (
	mu    sync.Mutex
	stats = map[string][]RunStats{} // tenant -> newest-last run stats
)

const statsKeep = 50

// RecordStats appends a run summary for a tenant, keeping a bounded window.
func RecordStats(tenant string, s RunStats) {
	mu.Lock()
	defer mu.Unlock()
	list := append(stats[tenant], s)
	if len(list) > statsKeep {
		list = list[len(list)-statsKeep:]
	}
	stats[tenant] = list
}

// GetStats returns the recorded run summaries for a tenant, oldest first.
func GetStats(tenant string) []RunStats {
	mu.Lock()
	defer mu.Unlock()
	out := make([]RunStats, len(stats[tenant]))
	copy(out, stats[tenant])
	return out
}
