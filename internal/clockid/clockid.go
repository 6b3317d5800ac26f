// Package clockid provides the two primitives every persisted record in
// terminald needs: a UTC millisecond timestamp and a fresh session/client
// identifier.
package clockid

import (
	"time"

	"github.com/google/uuid"
)

// isoMillis is the layout used throughout the on-disk stores and the wire
// protocol; applied to a UTC time it renders as "2006-01-02T15:04:05.000Z".
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// NowISO returns the current time as a UTC ISO-8601 string with millisecond
// precision, e.g. "2026-08-01T12:00:00.123Z".
func NowISO() string {
	return time.Now().UTC().Format(isoMillis)
}

// FormatISO renders t as a UTC ISO-8601 string with millisecond precision.
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// NewID returns a fresh v4 UUID string, used for both session IDs and
// per-connection client IDs.
func NewID() string {
	return uuid.New().String()
}
