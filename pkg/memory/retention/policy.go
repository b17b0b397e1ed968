// Package retention decides which working-tier files are inside the
// retention window. Decisions are made from the zero-padded date prefix of
// each file name, so no file is opened.
package retention

import (
	"time"
)

// DateLayout is the layout of the date prefix of working file names.
const DateLayout = "2006-01-02"

// DefaultWindowDays is used when a non-positive window is configured.
const DefaultWindowDays = 5

// Policy is a day-count retention window evaluated against a clock.
type Policy struct {
	WindowDays int
	Now        func() time.Time
}

// New returns a policy for the given window using the wall clock.
func New(windowDays int) Policy {
	return Policy{WindowDays: windowDays, Now: time.Now}
}

func (p Policy) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func (p Policy) window() int {
	if p.WindowDays <= 0 {
		return DefaultWindowDays
	}
	return p.WindowDays
}

// Today returns the current date prefix.
func (p Policy) Today() string {
	return p.now().Format(DateLayout)
}

// Cutoff returns today minus the window as a date prefix. Files dated on or
// after the cutoff are recent; files strictly before it are expired.
func (p Policy) Cutoff() string {
	return CutoffFor(p.now(), p.window())
}

// CutoffFor returns now minus days as a date prefix.
func CutoffFor(now time.Time, days int) string {
	return now.AddDate(0, 0, -days).Format(DateLayout)
}

// DateOf extracts the date prefix of a working file name. ok is false when
// the name does not start with a valid date.
func DateOf(name string) (string, bool) {
	if len(name) < len(DateLayout) {
		return "", false
	}
	prefix := name[:len(DateLayout)]
	if _, err := time.Parse(DateLayout, prefix); err != nil {
		return "", false
	}
	return prefix, true
}

// InWindow reports whether the file is dated on or after the cutoff.
func (p Policy) InWindow(name string) bool {
	date, ok := DateOf(name)
	return ok && date >= p.Cutoff()
}

// Expired reports whether the file is dated strictly before the cutoff.
// Names without a date prefix are never expired.
func (p Policy) Expired(name string) bool {
	date, ok := DateOf(name)
	return ok && date < p.Cutoff()
}
