// Package wake abstracts the channel that says "the trigger phrase was
// spoken": a serial line from the wake-word microcontroller, a manual trigger
// for running without hardware, or nothing at all for always-on operation.
package wake

import (
	"fmt"
	"time"

	"github.com/waifuisalie/Talking-Buddy/internal/config"
)

type Event struct {
	At     time.Time
	Source string
}

// Source delivers wake events to the fire callback from its own goroutine.
// Stop tears the source down; NotifySleeping tells the other end the
// appliance is going to sleep (optional, best-effort).
type Source interface {
	Start(fire func(Event)) error
	Stop()
	NotifySleeping()
}

func NewSource(cfg config.WakeConfig) (Source, error) {
	switch cfg.Mode {
	case config.WakeSerial:
		return newSerialSource(cfg.Port, cfg.Baud), nil
	case config.WakeManual:
		return NewManual(), nil
	case config.WakeDisabled:
		return disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown wake mode %q", cfg.Mode)
	}
}

// Manual is the operator-initiated source, fed by the control socket.
type Manual struct {
	fire func(Event)
}

func NewManual() *Manual { return &Manual{} }

func (m *Manual) Start(fire func(Event)) error {
	m.fire = fire
	return nil
}

func (m *Manual) Stop()           {}
func (m *Manual) NotifySleeping() {}

// Trigger simulates a wake-word detection.
func (m *Manual) Trigger() {
	if m.fire != nil {
		m.fire(Event{At: time.Now(), Source: "manual"})
	}
}

type disabled struct{}

func (disabled) Start(func(Event)) error { return nil }
func (disabled) Stop()                   {}
func (disabled) NotifySleeping()         {}
