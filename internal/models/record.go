package models

import "time"

// LogRecord is one raw log line as returned by a source. Timestamp keeps the
// source's own sortable string form (ISO-8601 for CloudWatch Insights) so
// last-seen comparisons match what the backend reported.
type LogRecord struct {
	Timestamp string
	Message   string
	Source    string
}

// Window bounds one fetch. Sources query [Start, End); the engine itself does
// no time filtering.
type Window struct {
	Start time.Time
	End   time.Time
}

// LastHours returns a window ending now and reaching back the given number of hours.
func LastHours(hours int) Window {
	if hours <= 0 {
		hours = 1
	}
	end := time.Now()
	return Window{Start: end.Add(-time.Duration(hours) * time.Hour), End: end}
}

// Hours reports the window length in whole hours, minimum 1.
func (w Window) Hours() int {
	h := int(w.End.Sub(w.Start).Hours())
	if h < 1 {
		return 1
	}
	return h
}
