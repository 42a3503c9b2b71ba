package metrics

import "sync/atomic"

var (
	itemsProcessed    int64
	overridesAppended int64
	itemsSkipped      int64
	validationsOpen   int64
	runsCompleted     int64
)

func IncProcessed()  { atomic.AddInt64(&itemsProcessed, 1) }
func IncAppended()   { atomic.AddInt64(&overridesAppended, 1) }
func IncSkipped()    { atomic.AddInt64(&itemsSkipped, 1) }
func IncFailedOpen() { atomic.AddInt64(&validationsOpen, 1) }
func IncRuns()       { atomic.AddInt64(&runsCompleted, 1) }

func Snapshot() map[string]int64 {
	return map[string]int64{
		"items_processed":         atomic.LoadInt64(&itemsProcessed),
		"overrides_appended":      atomic.LoadInt64(&overridesAppended),
		"items_skipped":           atomic.LoadInt64(&itemsSkipped),
		"validations_failed_open": atomic.LoadInt64(&validationsOpen),
		"runs_completed":          atomic.LoadInt64(&runsCompleted),
	}
}
