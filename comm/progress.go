package comm

import (
	"time"
)

var lastProgressPrint time.Time
var maxProgressPrintDuration = 500 * time.Millisecond

// Progress reports the completion of the current task, in the [0,1] interval.
// It is only visible in JSON mode, and throttled.
func Progress(alpha float64) {
	if !settings.json {
		return
	}

	if !lastProgressPrint.IsZero() && time.Since(lastProgressPrint) < maxProgressPrintDuration && alpha < 1.0 {
		return
	}
	lastProgressPrint = time.Now()

	send("progress", JsonMessage{
		"progress":   alpha,
		"percentage": alpha * 100.0,
	})
}

// ProgressLabel describes what is being worked on right now
func ProgressLabel(label string) {
	Debugf("%s %s", theme.OpSign, label)
}

// PauseProgress is a no-op kept for state.Consumer compatibility
func PauseProgress() {}

// ResumeProgress is a no-op kept for state.Consumer compatibility
func ResumeProgress() {}
