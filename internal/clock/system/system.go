// Package system provides the wall clock used for capture timestamps.
package system

import "time"

// ISOLayout matches JavaScript's Date.prototype.toISOString, the format
// browser pages report timestamps in.
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"

// Clock reads the wall clock in UTC at millisecond precision, so its values
// compare equal to timestamps read back from a page.
type Clock struct{}

// New creates a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to milliseconds.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// ISO formats t the way a browser's toISOString would.
func ISO(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}
