package governor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTooManyKeys reports that the store's key cap was reached while admitting
// a previously unseen key. It signals unbounded key cardinality, a
// configuration problem, not throttling.
var ErrTooManyKeys = errors.New("too many live keys")

// cell holds one key's admission state. dead is set, under mu, when a sweep
// removes the cell from the map; an Allow that raced and still holds the old
// pointer must then start over with a fresh cell instead of writing to the
// removed one.
type cell struct {
	mu          sync.Mutex
	tat         time.Time
	lastTouched time.Time
	dead        bool
}

// Store maps keys to admission cells. Operations on different keys never
// block each other; operations on one key are serialized by the cell mutex,
// so same-key requests observe each other's updates in arrival order.
type Store struct {
	cells   sync.Map // string -> *cell
	live    atomic.Int64
	maxKeys int64 // 0 means unbounded
}

// NewStore creates a store holding at most maxKeys live keys; 0 means
// unbounded.
func NewStore(maxKeys int64) *Store {
	return &Store{maxKeys: maxKeys}
}

// Allow runs one admission check for key at now, creating state on first
// contact. lastTouched is refreshed on every call, admitted or denied.
// The key cap is checked before creating a cell; concurrent first contacts
// may overshoot the cap by a few entries.
func (s *Store) Allow(key string, q Quota, now time.Time) (Decision, error) {
	for {
		v, ok := s.cells.Load(key)
		if !ok {
			if s.maxKeys > 0 && s.live.Load() >= s.maxKeys {
				return Decision{}, fmt.Errorf("%w: cap %d", ErrTooManyKeys, s.maxKeys)
			}
			var loaded bool
			v, loaded = s.cells.LoadOrStore(key, &cell{})
			if !loaded {
				s.live.Add(1)
			}
		}

		c := v.(*cell)
		c.mu.Lock()
		if c.dead {
			c.mu.Unlock()
			continue
		}
		dec, tat := decide(q, c.tat, now)
		if dec.Allowed {
			c.tat = tat
		}
		c.lastTouched = now
		c.mu.Unlock()
		return dec, nil
	}
}

// Sweep removes every cell untouched for longer than idleThreshold and
// returns the number evicted. It runs concurrently with Allow traffic: a cell
// retouched after its staleness was observed simply survives until a later
// sweep.
func (s *Store) Sweep(now time.Time, idleThreshold time.Duration) int {
	cutoff := now.Add(-idleThreshold)
	evicted := 0
	s.cells.Range(func(k, v any) bool {
		c := v.(*cell)
		c.mu.Lock()
		if !c.dead && c.lastTouched.Before(cutoff) {
			c.dead = true
			s.cells.Delete(k)
			s.live.Add(-1)
			evicted++
		}
		c.mu.Unlock()
		return true
	})
	return evicted
}

// Len reports the number of live keys.
func (s *Store) Len() int {
	return int(s.live.Load())
}
