package governor

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// defaultGCInterval matches the collector cadence a policy gets when the
// caller never sets one.
const defaultGCInterval = time.Minute

// Builder is the unconfigured stage of policy construction. It deliberately
// has no Build method: a rate must be chosen first, which moves construction
// to the QuotaBuilder stage. A policy without a rate is therefore a compile
// error, not a runtime one.
type Builder struct{}

// NewBuilder starts policy construction.
func NewBuilder() *Builder { return &Builder{} }

// PerSecond fixes the replenishment rate at n units per second and moves the
// builder to the configured stage. A non-positive n is carried and surfaced
// by Build as ErrInvalidQuota.
func (b *Builder) PerSecond(n int) *QuotaBuilder {
	q, err := PerSecond(n)
	return newQuotaBuilder(q, err)
}

// PerMinute fixes the replenishment rate at n units per minute and moves the
// builder to the configured stage.
func (b *Builder) PerMinute(n int) *QuotaBuilder {
	q, err := PerMinute(n)
	return newQuotaBuilder(q, err)
}

// WithQuota fixes an explicit quota and moves the builder to the configured
// stage.
func (b *Builder) WithQuota(q Quota) *QuotaBuilder {
	var err error
	if q.interval <= 0 || q.burst < 1 {
		_, err = NewQuota(q.interval, q.burst)
	}
	return newQuotaBuilder(q, err)
}

func newQuotaBuilder(q Quota, err error) *QuotaBuilder {
	return &QuotaBuilder{
		quota:      q,
		err:        err,
		gcInterval: defaultGCInterval,
		log:        zerolog.Nop(),
	}
}

// QuotaBuilder is the configured stage: the rate is fixed and refinements may
// be applied before Build. Each setter overrides any earlier value.
type QuotaBuilder struct {
	quota      Quota
	err        error
	gcInterval time.Duration
	idle       time.Duration
	maxKeys    int64
	log        zerolog.Logger
	onSweep    func(evicted int)
}

// BurstSize replaces the quota's burst capacity.
func (b *QuotaBuilder) BurstSize(n int) *QuotaBuilder {
	if b.err == nil {
		b.quota, b.err = b.quota.AllowBurst(n)
	}
	return b
}

// GCInterval sets how often the background collector sweeps idle keys.
// Zero disables the collector; Sweep can then be driven manually.
func (b *QuotaBuilder) GCInterval(d time.Duration) *QuotaBuilder {
	b.gcInterval = d
	return b
}

// IdleThreshold overrides how long a key may stay untouched before eviction.
// The default is the full burst refill window (replenish interval times
// burst), after which an evicted key readmits exactly like an unseen one.
func (b *QuotaBuilder) IdleThreshold(d time.Duration) *QuotaBuilder {
	b.idle = d
	return b
}

// MaxKeys caps the number of live keys the store may hold; 0 means
// unbounded. Exceeding the cap surfaces ErrTooManyKeys from Allow.
func (b *QuotaBuilder) MaxKeys(n int64) *QuotaBuilder {
	b.maxKeys = n
	return b
}

// Logger attaches a logger for decision and sweep events. The default
// discards them.
func (b *QuotaBuilder) Logger(l zerolog.Logger) *QuotaBuilder {
	b.log = l
	return b
}

// OnSweep attaches a hook invoked after every sweep with the evicted count.
func (b *QuotaBuilder) OnSweep(fn func(evicted int)) *QuotaBuilder {
	b.onSweep = fn
	return b
}

// Build finalizes the policy with all requests sharing one global cell.
func (b *QuotaBuilder) Build() (*Policy, error) {
	return b.build(nil)
}

// BuildWithKeyer finalizes the policy with per-key cells, fn mapping each
// request's keying input to its cell key.
func (b *QuotaBuilder) BuildWithKeyer(fn KeyFunc) (*Policy, error) {
	if fn == nil {
		return nil, errors.New("build with keyer: nil key function")
	}
	return b.build(fn)
}

func (b *QuotaBuilder) build(fn KeyFunc) (*Policy, error) {
	if b.err != nil {
		return nil, b.err
	}
	idle := b.idle
	if idle <= 0 {
		idle = b.quota.interval * time.Duration(b.quota.burst)
	}
	p := &Policy{
		quota:         b.quota,
		store:         NewStore(b.maxKeys),
		keyFn:         fn,
		idleThreshold: idle,
		gcInterval:    b.gcInterval,
		log:           b.log,
		onSweep:       b.onSweep,
		done:          make(chan struct{}),
	}
	p.startGC()
	return p, nil
}
