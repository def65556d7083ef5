// Package governor implements keyed admission control using the generic
// cell rate algorithm (GCRA). A Policy maps each request to a key, tracks a
// single theoretical arrival time per key, and answers admit/deny in O(1);
// a background collector evicts keys that have been idle long enough to
// have fully refilled.
package governor

import "time"

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	// RetryAfter is how long the caller should wait before retrying.
	// Meaningful only when Allowed is false.
	RetryAfter time.Duration
}

// decide runs one GCRA step. tat is the cell's theoretical arrival time; the
// zero value means the key has never been seen, which always admits. The
// returned time is the new theoretical arrival time; on a deny it is tat
// unchanged, so denied requests consume no refill.
func decide(q Quota, tat, now time.Time) (Decision, time.Time) {
	if tat.IsZero() {
		tat = now
	}
	allowedAt := tat.Add(-q.burstOffset())
	if now.Before(allowedAt) {
		return Decision{RetryAfter: allowedAt.Sub(now)}, tat
	}
	next := tat
	if now.After(next) {
		next = now
	}
	return Decision{Allowed: true}, next.Add(q.interval)
}
