package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SentAtFormat is the timestamp layout used on the wire. Millisecond
// precision is enough for dashboard display.
const SentAtFormat = "2006-01-02T15:04:05.000Z07:00"

// RunResult is the immutable record of one benchmark run: its 1-based
// index, the moment the statement was sent, and the measured wall-clock
// duration.
type RunResult struct {
	Run      int
	SentAt   time.Time
	Duration time.Duration
}

// MarshalJSON renders the message pushed to live subscribers. The run
// index is included for completeness, but subscribers only need sent_at
// and duration to plot a timeseries.
func (r RunResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Run      int    `json:"run"`
		SentAt   string `json:"sent_at"`
		Duration string `json:"duration"`
	}{
		Run:      r.Run,
		SentAt:   r.SentAt.UTC().Format(SentAtFormat),
		Duration: FormatSeconds(r.Duration),
	})
}

// String returns a one-line rendering of r, suitable for printing each
// run as it completes.
func (r RunResult) String() string {
	return fmt.Sprintf("run %d  sent_at=%s  duration=%ss",
		r.Run, r.SentAt.UTC().Format(SentAtFormat), FormatSeconds(r.Duration))
}

// FormatSeconds renders d as decimal seconds with microsecond precision
// and no trailing zeros, e.g. "0.01" or "1.000001".
func FormatSeconds(d time.Duration) string {
	s := strconv.FormatFloat(d.Seconds(), 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" {
		return "0"
	}
	return s
}
