// Package statusled drives the front-panel LEDs that show which state the
// appliance is in, so the user can tell listening from processing without a
// screen.
package statusled

import (
	"fmt"
	log "log/slog"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"github.com/waifuisalie/Talking-Buddy/internal/config"
	"github.com/waifuisalie/Talking-Buddy/internal/controller"
)

type line interface {
	SetValue(value int) error
	Close() error
}

type Lamp struct {
	mu   sync.Mutex
	leds map[string]line
}

// New requests the configured GPIO lines as outputs, all off. Yellow is
// requested only when its pin is set.
func New(cfg config.LEDConfig) (*Lamp, error) {
	pins := map[string]int{
		"red":   cfg.RedPin,
		"green": cfg.GreenPin,
		"blue":  cfg.BluePin,
	}
	if cfg.YellowPin > 0 {
		pins["yellow"] = cfg.YellowPin
	}

	leds := make(map[string]line, len(pins))
	for color, pin := range pins {
		l, err := gpiocdev.RequestLine(cfg.Chip, pin, gpiocdev.AsOutput(0))
		if err != nil {
			for _, open := range leds {
				open.Close()
			}
			return nil, fmt.Errorf("request %s led on %s pin %d: %w", color, cfg.Chip, pin, err)
		}
		leds[color] = l
	}

	return &Lamp{leds: leds}, nil
}

// lit maps a state to the colors shown for it. Light sleep shows white
// because solid blue already means listening; processing mixes red and green
// when no yellow LED is wired.
func (l *Lamp) lit(state controller.State) map[string]bool {
	switch state {
	case controller.Listening:
		return map[string]bool{"blue": true}
	case controller.Processing:
		if _, ok := l.leds["yellow"]; ok {
			return map[string]bool{"yellow": true}
		}
		return map[string]bool{"red": true, "green": true}
	case controller.Speaking:
		return map[string]bool{"green": true}
	case controller.LightSleep:
		return map[string]bool{"red": true, "green": true, "blue": true}
	case controller.DeepSleep:
		return map[string]bool{"red": true}
	default:
		return nil
	}
}

// Set switches the panel to the given state's colors. A failing line is
// logged and skipped; a dead LED must never block a transition.
func (l *Lamp) Set(state controller.State) {
	on := l.lit(state)

	l.mu.Lock()
	defer l.mu.Unlock()

	for color, led := range l.leds {
		v := 0
		if on[color] {
			v = 1
		}
		if err := led.SetValue(v); err != nil {
			log.Warn("led write failed", "color", color, "err", err)
		}
	}
}

// Close turns every LED off and releases the lines.
func (l *Lamp) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for color, led := range l.leds {
		if err := led.SetValue(0); err != nil {
			log.Warn("led off failed", "color", color, "err", err)
		}
		led.Close()
	}
	l.leds = nil
}
