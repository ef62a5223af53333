// Package notify plays the short audible cue that tells the user the wake
// word landed.
package notify

import "fmt"

// Player is the audio output the cue goes through. The speaker device has a
// single owner process-wide; the chime borrows it instead of initializing
// its own.
type Player interface {
	Play(path string) error
}

type Chime struct {
	path string
	play Player
}

// NewChime returns a chime backed by the given audio file. An empty path
// yields a silent chime, for headless or test setups.
func NewChime(path string, play Player) *Chime {
	return &Chime{path: path, play: play}
}

// Play sounds the cue and blocks until it finishes. Errors are returned, not
// fatal: a missing chime file must never block a wake.
func (c *Chime) Play() error {
	if c.path == "" {
		return nil
	}
	if err := c.play.Play(c.path); err != nil {
		return fmt.Errorf("chime: %w", err)
	}
	return nil
}
