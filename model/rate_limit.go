package model

import "time"

// RateLimitWindow is the fixed-window counter state held per identifier.
// Entries live only for the lifetime of the process (or the TTL of their
// redis key); there is no durable rate-limit state across restarts.
type RateLimitWindow struct {
	Identifier string    `json:"identifier"`
	Count      int       `json:"count"`
	ResetAt    time.Time `json:"reset_at"`
}

// Expired reports whether the window has passed and the next check should
// start a fresh one.
func (w *RateLimitWindow) Expired(now time.Time) bool {
	return !now.Before(w.ResetAt)
}
