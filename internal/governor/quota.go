package governor

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidQuota reports a rate description that cannot limit anything:
// a non-positive replenish interval or a zero burst.
var ErrInvalidQuota = errors.New("invalid quota")

// Quota describes an admission rate: one unit replenishes every
// ReplenishInterval, and up to Burst units may be admitted back to back.
// A Quota is immutable and may be shared by any number of cells.
type Quota struct {
	interval time.Duration
	burst    int
}

// NewQuota builds a quota from an explicit replenish interval and burst size.
func NewQuota(interval time.Duration, burst int) (Quota, error) {
	if interval <= 0 {
		return Quota{}, fmt.Errorf("%w: replenish interval %v", ErrInvalidQuota, interval)
	}
	if burst < 1 {
		return Quota{}, fmt.Errorf("%w: burst %d", ErrInvalidQuota, burst)
	}
	return Quota{interval: interval, burst: burst}, nil
}

// PerSecond returns a quota admitting n units per second, with a default
// burst of n.
func PerSecond(n int) (Quota, error) {
	if n <= 0 {
		return Quota{}, fmt.Errorf("%w: %d per second", ErrInvalidQuota, n)
	}
	return Quota{interval: time.Second / time.Duration(n), burst: n}, nil
}

// PerMinute returns a quota admitting n units per minute, with a default
// burst of n.
func PerMinute(n int) (Quota, error) {
	if n <= 0 {
		return Quota{}, fmt.Errorf("%w: %d per minute", ErrInvalidQuota, n)
	}
	return Quota{interval: time.Minute / time.Duration(n), burst: n}, nil
}

// AllowBurst returns a copy of q with the burst capacity replaced.
func (q Quota) AllowBurst(burst int) (Quota, error) {
	return NewQuota(q.interval, burst)
}

// ReplenishInterval is the time to replenish one unit.
func (q Quota) ReplenishInterval() time.Duration { return q.interval }

// Burst is the number of units admittable back to back.
func (q Quota) Burst() int { return q.burst }

// burstOffset is how far ahead of now a cell's theoretical arrival time may
// run before admissions stop.
func (q Quota) burstOffset() time.Duration {
	return q.interval * time.Duration(q.burst-1)
}
