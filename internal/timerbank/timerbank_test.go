package timerbank

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFire(t *testing.T) {
	b := New()

	fired := make(chan struct{})
	b.Start(Conversation, 20*time.Millisecond, func() { close(fired) })
	require.True(t, b.Active(Conversation))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	// Fired instance removes itself.
	assert.Eventually(t, func() bool { return !b.Active(Conversation) },
		time.Second, 5*time.Millisecond)
}

func TestStartReplacesNoDoubleFire(t *testing.T) {
	b := New()

	var fires atomic.Int32
	b.Start(Conversation, 30*time.Millisecond, func() { fires.Add(1) })
	b.Start(Conversation, 30*time.Millisecond, func() { fires.Add(1) })

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(1), fires.Load(), "replaced timer must not fire")
}

func TestSecondStartRestartsCountdown(t *testing.T) {
	b := New()

	fired := make(chan time.Time, 1)
	b.Start(Idle, 60*time.Millisecond, func() { fired <- time.Now() })

	time.Sleep(40 * time.Millisecond)
	restart := time.Now()
	b.Start(Idle, 60*time.Millisecond, func() { fired <- time.Now() })

	select {
	case at := <-fired:
		// The fire must be measured from the second Start, not the first.
		assert.GreaterOrEqual(t, at.Sub(restart), 50*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestCancel(t *testing.T) {
	b := New()

	var fires atomic.Int32
	b.Start(Idle, 30*time.Millisecond, func() { fires.Add(1) })
	b.Cancel(Idle)

	assert.False(t, b.Active(Idle))
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), fires.Load())

	// Cancelling an idle name is a no-op.
	b.Cancel("nonexistent")
}

func TestCancelThenRestartNeverFiresStale(t *testing.T) {
	b := New()

	// An already-elapsed instance races Cancel/Start for the lock. Arming
	// the name again right after Cancel must not let the old fire through,
	// and the replacement must stay armed.
	var stale atomic.Int32
	for i := 0; i < 200; i++ {
		b.Start(Idle, time.Nanosecond, func() { stale.Add(1) })
		b.Cancel(Idle)
		b.Start(Idle, time.Hour, func() { stale.Add(1) })

		assert.True(t, b.Active(Idle))
		b.Cancel(Idle)
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), stale.Load(), "cancelled timer fired")
}

func TestReset(t *testing.T) {
	b := New()

	assert.False(t, b.Reset(Conversation, func() {}))

	fired := make(chan struct{}, 1)
	b.Start(Conversation, 50*time.Millisecond, func() { fired <- struct{}{} })

	time.Sleep(30 * time.Millisecond)
	require.True(t, b.Reset(Conversation, func() { fired <- struct{}{} }))

	// Inside the original window nothing fires; the reset one does later.
	select {
	case <-fired:
		t.Fatal("fired before reset countdown elapsed")
	case <-time.After(30 * time.Millisecond):
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("reset timer never fired")
	}
}

func TestCancelAll(t *testing.T) {
	b := New()

	var fires atomic.Int32
	b.Start(Conversation, 30*time.Millisecond, func() { fires.Add(1) })
	b.Start(Idle, 30*time.Millisecond, func() { fires.Add(1) })
	b.CancelAll()

	assert.False(t, b.Active(Conversation))
	assert.False(t, b.Active(Idle))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), fires.Load())
}
