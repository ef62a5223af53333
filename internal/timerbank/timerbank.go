// Package timerbank keeps named one-shot countdowns with replace-on-start
// semantics: at most one live timer per name, and starting a name again
// cancels the previous instance before arming the new one.
package timerbank

import (
	log "log/slog"
	"sync"
	"time"
)

const (
	Conversation = "conversation"
	Idle         = "idle"
)

type entry struct {
	timer    *time.Timer
	duration time.Duration
}

type Bank struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Bank {
	return &Bank{entries: make(map[string]*entry)}
}

// Start arms the named timer for d, replacing any previous instance of the
// same name. fire runs on the runtime timer goroutine once the countdown
// elapses; a replaced or cancelled instance never fires, even if its
// underlying timer already expired and is racing for the lock.
func (b *Bank) Start(name string, d time.Duration, fire func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.entries[name]
	if prev != nil {
		prev.timer.Stop()
	}

	e := &entry{duration: d}
	e.timer = time.AfterFunc(d, func() {
		if !b.expire(name, e) {
			return
		}
		fire()
	})
	b.entries[name] = e

	log.Debug("timer armed", "name", name, "duration", d)
}

// expire reports whether the firing instance is still the current one and,
// if so, removes it. The identity check makes a stale fire a no-op even
// across a Cancel/Start pair: the map then holds a different entry, not the
// one whose countdown elapsed.
func (b *Bank) expire(name string, e *entry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.entries[name] != e {
		return false
	}
	delete(b.entries, name)
	return true
}

// Cancel stops the named timer if it is running. No-op otherwise.
func (b *Bank) Cancel(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entries[name]
	if e == nil {
		return
	}
	e.timer.Stop()
	// Removing the entry is what makes an already-elapsed fire a no-op:
	// expire will not find it.
	delete(b.entries, name)

	log.Debug("timer cancelled", "name", name)
}

// Reset re-arms the named timer with its previous duration. Returns false if
// the timer is not currently armed.
func (b *Bank) Reset(name string, fire func()) bool {
	b.mu.Lock()
	prev := b.entries[name]
	b.mu.Unlock()

	if prev == nil {
		return false
	}
	b.Start(name, prev.duration, fire)
	return true
}

// Active reports whether the named timer is currently armed.
func (b *Bank) Active(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entries[name] != nil
}

// CancelAll stops every live timer. Used on shutdown.
func (b *Bank) CancelAll() {
	b.mu.Lock()
	names := make([]string, 0, len(b.entries))
	for name := range b.entries {
		names = append(names, name)
	}
	b.mu.Unlock()

	for _, name := range names {
		b.Cancel(name)
	}
}
