// Package history keeps the rolling conversation transcript: a bounded list
// of user/assistant entries with optional JSON persistence between runs.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Entry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Manager struct {
	mu         sync.Mutex
	entries    []Entry
	maxEntries int
	saveFile   string
}

// New creates a manager bounded at maxEntries. If saveFile is non-empty an
// existing transcript is loaded from it and every mutation is persisted back.
func New(maxEntries int, saveFile string) (*Manager, error) {
	if maxEntries <= 0 {
		maxEntries = 20
	}

	m := &Manager{maxEntries: maxEntries, saveFile: saveFile}

	if saveFile != "" {
		if err := m.load(); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load history: %w", err)
		}
	}

	return m, nil
}

func (m *Manager) AddUser(content string) {
	m.add(RoleUser, content)
}

func (m *Manager) AddAssistant(content string) {
	m.add(RoleAssistant, content)
}

func (m *Manager) add(role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, Entry{Role: role, Content: content, Timestamp: time.Now()})
	if len(m.entries) > m.maxEntries {
		m.entries = m.entries[len(m.entries)-m.maxEntries:]
	}

	if m.saveFile != "" {
		// Persistence is best-effort; a full disk must not break the turn.
		_ = m.saveLocked()
	}
}

// Recent returns up to count entries from the tail, oldest first.
func (m *Manager) Recent(count int) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if count <= 0 || count > len(m.entries) {
		count = len(m.entries)
	}
	out := make([]Entry, count)
	copy(out, m.entries[len(m.entries)-count:])
	return out
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = nil
	if m.saveFile != "" {
		_ = m.saveLocked()
	}
}

// Save writes the transcript to the configured file, if any.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveFile == "" {
		return nil
	}
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	data, err := json.MarshalIndent(m.entries, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(m.saveFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(m.saveFile, data, 0o644)
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.saveFile)
	if err != nil {
		return err
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse %s: %w", m.saveFile, err)
	}

	if len(entries) > m.maxEntries {
		entries = entries[len(entries)-m.maxEntries:]
	}
	m.entries = entries
	return nil
}

// ExportMarkdown renders the transcript as a markdown dialogue.
func (m *Manager) ExportMarkdown() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	b.WriteString("# Conversation\n\n")
	for _, e := range m.entries {
		who := "Assistant"
		if e.Role == RoleUser {
			who = "User"
		}
		fmt.Fprintf(&b, "**%s** (%s): %s\n\n", who, e.Timestamp.Format("15:04:05"), e.Content)
	}
	return b.String()
}
