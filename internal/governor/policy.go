package governor

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// globalKey is the reserved cell key used when no key function is set.
const globalKey = "\x00global"

// KeyFunc maps the raw keying input extracted from a request (for example a
// peer address) to the cell key limits are tracked under.
type KeyFunc func(raw string) string

// Policy is an immutable admission policy over a keyed store. Build one with
// NewBuilder. A Policy is safe for concurrent use; Close stops its background
// collector.
type Policy struct {
	quota         Quota
	store         *Store
	keyFn         KeyFunc
	idleThreshold time.Duration
	gcInterval    time.Duration
	log           zerolog.Logger
	onSweep       func(evicted int)

	done      chan struct{}
	closeOnce sync.Once
}

// Allow decides admission for the request whose keying input is raw, observed
// at now. With no key function configured, all requests share one global
// cell.
func (p *Policy) Allow(raw string, now time.Time) (Decision, error) {
	key := globalKey
	if p.keyFn != nil {
		key = p.keyFn(raw)
	}
	dec, err := p.store.Allow(key, p.quota, now)
	if err != nil {
		p.log.Error().Err(err).Str("key", key).Msg("admission check failed")
		return dec, err
	}
	if dec.Allowed {
		p.log.Debug().Str("key", key).Msg("admitted")
	} else {
		p.log.Debug().Str("key", key).Dur("retry_after", dec.RetryAfter).Msg("denied")
	}
	return dec, nil
}

// Quota returns the policy's quota.
func (p *Policy) Quota() Quota { return p.quota }

// Keys reports the number of keys currently tracked.
func (p *Policy) Keys() int { return p.store.Len() }

// IdleThreshold is how long a key may stay untouched before a sweep evicts
// it.
func (p *Policy) IdleThreshold() time.Duration { return p.idleThreshold }

// Sweep evicts keys idle beyond the policy's idle threshold and returns the
// number evicted. The background collector calls it on every tick; it may
// also be driven manually when no collector is running.
func (p *Policy) Sweep(now time.Time) int {
	evicted := p.store.Sweep(now, p.idleThreshold)
	if evicted > 0 {
		p.log.Debug().Int("evicted", evicted).Int("live", p.store.Len()).Msg("gc sweep")
	}
	if p.onSweep != nil {
		p.onSweep(evicted)
	}
	return evicted
}

// Close stops the background collector. Safe to call more than once; it
// never blocks in-flight admission checks, and an in-flight sweep runs to
// completion.
func (p *Policy) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// startGC launches the periodic sweep goroutine. No goroutine runs when the
// interval is zero.
func (p *Policy) startGC() {
	if p.gcInterval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(p.gcInterval)
		defer t.Stop()
		for {
			select {
			case <-p.done:
				return
			case <-t.C:
				p.Sweep(time.Now())
			}
		}
	}()
}
