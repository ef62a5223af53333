package history

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrim(t *testing.T) {
	m, err := New(4, "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		m.AddUser("pergunta")
		m.AddAssistant("resposta")
	}

	assert.Equal(t, 4, m.Len())

	recent := m.Recent(0)
	require.Len(t, recent, 4)
	assert.Equal(t, RoleUser, recent[0].Role)
	assert.Equal(t, RoleAssistant, recent[3].Role)
}

func TestRecentCount(t *testing.T) {
	m, err := New(10, "")
	require.NoError(t, err)

	m.AddUser("a")
	m.AddAssistant("b")
	m.AddUser("c")

	recent := m.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Content)
	assert.Equal(t, "c", recent[1].Content)

	assert.Len(t, m.Recent(99), 3)
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversation.json")

	m, err := New(10, path)
	require.NoError(t, err)

	m.AddUser("oi")
	m.AddAssistant("olá! como posso ajudar?")

	reloaded, err := New(10, path)
	require.NoError(t, err)

	require.Equal(t, 2, reloaded.Len())
	entries := reloaded.Recent(0)
	assert.Equal(t, "oi", entries[0].Content)
	assert.Equal(t, RoleAssistant, entries[1].Role)
}

func TestClear(t *testing.T) {
	m, err := New(10, "")
	require.NoError(t, err)

	m.AddUser("oi")
	m.Clear()
	assert.Equal(t, 0, m.Len())
}

func TestExportMarkdown(t *testing.T) {
	m, err := New(10, "")
	require.NoError(t, err)

	m.AddUser("qual a previsão do tempo?")
	m.AddAssistant("vai chover.")

	md := m.ExportMarkdown()
	assert.True(t, strings.Contains(md, "**User**"))
	assert.True(t, strings.Contains(md, "vai chover."))
}
