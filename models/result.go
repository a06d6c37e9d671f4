package models

import "time"

// RunResult holds the overall result of one harvest run.
type RunResult struct {
	Flow            string
	StartTime       time.Time
	EndTime         time.Time
	StartCursor     int
	NextCursor      int
	PageCount       int
	ItemCount       int
	SkippedCount    int
	ErrorCount      int
	RetryCount      int
	SessionRestarts int
	FailedUnits     []string
	ErrorsByType    map[string]int
}

// Duration returns the wall-clock time of the run.
func (r *RunResult) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}
