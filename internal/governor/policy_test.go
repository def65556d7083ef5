package governor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_InvalidRate(t *testing.T) {
	_, err := NewBuilder().PerSecond(0).Build()
	assert.ErrorIs(t, err, ErrInvalidQuota)

	_, err = NewBuilder().PerMinute(-5).Build()
	assert.ErrorIs(t, err, ErrInvalidQuota)

	_, err = NewBuilder().PerSecond(10).BurstSize(0).Build()
	assert.ErrorIs(t, err, ErrInvalidQuota)

	_, err = NewBuilder().WithQuota(Quota{}).Build()
	assert.ErrorIs(t, err, ErrInvalidQuota)
}

func TestBuilder_LastWriteWins(t *testing.T) {
	p, err := NewBuilder().
		PerSecond(10).
		BurstSize(2).
		BurstSize(7).
		GCInterval(0).
		Build()
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 7, p.Quota().Burst())
}

func TestBuilder_NilKeyer(t *testing.T) {
	_, err := NewBuilder().PerSecond(1).BuildWithKeyer(nil)
	assert.Error(t, err)
}

func TestPolicy_DirectSharesOneCell(t *testing.T) {
	p, err := NewBuilder().PerSecond(2).BurstSize(2).GCInterval(0).Build()
	require.NoError(t, err)
	defer p.Close()

	// without a keyer, distinct raw inputs land on the same cell
	dec, err := p.Allow("10.0.0.1", base)
	require.NoError(t, err)
	require.True(t, dec.Allowed)
	dec, err = p.Allow("10.0.0.2", base)
	require.NoError(t, err)
	require.True(t, dec.Allowed)

	dec, err = p.Allow("10.0.0.3", base)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, 1, p.Keys())
}

func TestPolicy_KeyedIsolation(t *testing.T) {
	p, err := NewBuilder().
		PerSecond(1).
		GCInterval(0).
		BuildWithKeyer(func(raw string) string { return raw })
	require.NoError(t, err)
	defer p.Close()

	dec, err := p.Allow("a", base)
	require.NoError(t, err)
	require.True(t, dec.Allowed)
	dec, err = p.Allow("a", base)
	require.NoError(t, err)
	require.False(t, dec.Allowed)

	dec, err = p.Allow("b", base)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 2, p.Keys())
}

func TestPolicy_TwoPerSecondBurstFive(t *testing.T) {
	p, err := NewBuilder().
		PerSecond(2).
		BurstSize(5).
		GCInterval(0).
		BuildWithKeyer(func(raw string) string { return raw })
	require.NoError(t, err)
	defer p.Close()

	for i := 0; i < 5; i++ {
		dec, err := p.Allow("k", base)
		require.NoError(t, err)
		require.True(t, dec.Allowed, "request %d should be admitted", i+1)
	}

	dec, err := p.Allow("k", base)
	require.NoError(t, err)
	require.False(t, dec.Allowed)
	assert.Equal(t, 500*time.Millisecond, dec.RetryAfter)

	half := base.Add(500 * time.Millisecond)
	dec, err = p.Allow("k", half)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)

	dec, err = p.Allow("k", half)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
}

func TestPolicy_DefaultIdleThreshold(t *testing.T) {
	p, err := NewBuilder().PerSecond(4).BurstSize(8).GCInterval(0).Build()
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 2*time.Second, p.IdleThreshold())
}

func TestPolicy_ManualSweep(t *testing.T) {
	p, err := NewBuilder().
		PerSecond(10).
		IdleThreshold(2*time.Second).
		GCInterval(0).
		BuildWithKeyer(func(raw string) string { return raw })
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Allow("k", base)
	require.NoError(t, err)

	assert.Zero(t, p.Sweep(base.Add(time.Second)))
	assert.Equal(t, 1, p.Keys())

	assert.Equal(t, 1, p.Sweep(base.Add(3*time.Second)))
	assert.Zero(t, p.Keys())
}

func TestPolicy_BackgroundGC(t *testing.T) {
	var swept atomic.Int64
	p, err := NewBuilder().
		PerSecond(100).
		IdleThreshold(100*time.Millisecond).
		GCInterval(50*time.Millisecond).
		OnSweep(func(evicted int) { swept.Add(int64(evicted)) }).
		BuildWithKeyer(func(raw string) string { return raw })
	require.NoError(t, err)
	defer p.Close()

	start := time.Now()
	_, err = p.Allow("ephemeral", start)
	require.NoError(t, err)
	require.Equal(t, 1, p.Keys())

	// within one or two ticks past the threshold the key is gone
	assert.Eventually(t, func() bool { return p.Keys() == 0 },
		time.Second, 10*time.Millisecond, "idle key should be evicted")
	assert.GreaterOrEqual(t, swept.Load(), int64(1))

	// next contact behaves as first-ever
	dec, err := p.Allow("ephemeral", time.Now())
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
}

func TestPolicy_CloseStopsGC(t *testing.T) {
	p, err := NewBuilder().
		PerSecond(100).
		IdleThreshold(10*time.Millisecond).
		GCInterval(10*time.Millisecond).
		BuildWithKeyer(func(raw string) string { return raw })
	require.NoError(t, err)

	p.Close()
	p.Close() // idempotent

	_, err = p.Allow("k", time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, p.Keys())

	// with the collector stopped, the idle key is never evicted
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, p.Keys())
}

func TestPolicy_MaxKeysSurfacesError(t *testing.T) {
	p, err := NewBuilder().
		PerSecond(1).
		MaxKeys(1).
		GCInterval(0).
		BuildWithKeyer(func(raw string) string { return raw })
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Allow("a", base)
	require.NoError(t, err)

	_, err = p.Allow("b", base)
	assert.ErrorIs(t, err, ErrTooManyKeys)
	assert.NotErrorIs(t, err, ErrInvalidQuota)
}
