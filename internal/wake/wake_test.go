package wake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waifuisalie/Talking-Buddy/internal/config"
)

func TestManualTrigger(t *testing.T) {
	m := NewManual()

	var got []Event
	require.NoError(t, m.Start(func(e Event) { got = append(got, e) }))

	m.Trigger()
	m.Trigger()

	require.Len(t, got, 2)
	assert.Equal(t, "manual", got[0].Source)
	assert.False(t, got[0].At.IsZero())
}

func TestManualTriggerBeforeStart(t *testing.T) {
	// Must not panic.
	NewManual().Trigger()
}

func TestNewSource(t *testing.T) {
	src, err := NewSource(config.WakeConfig{Mode: config.WakeManual})
	require.NoError(t, err)
	_, ok := src.(*Manual)
	assert.True(t, ok)

	src, err = NewSource(config.WakeConfig{Mode: config.WakeDisabled})
	require.NoError(t, err)
	require.NoError(t, src.Start(func(Event) { t.Fatal("disabled source must never fire") }))
	src.Stop()
	src.NotifySleeping()

	_, err = NewSource(config.WakeConfig{Mode: "keyboard"})
	assert.Error(t, err)
}
