// Package lifecycle starts and stops the Ollama runtime behind the
// conversation. Light sleep keeps the model resident for a fast resume; deep
// sleep stops the service entirely and pays the cold start on the next wake.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/waifuisalie/Talking-Buddy/internal/config"
)

var (
	ErrStartFailed  = errors.New("ollama service start failed")
	ErrStartTimeout = errors.New("timed out waiting for ollama to become ready")
	ErrStopFailed   = errors.New("ollama service stop failed")
)

type Phase string

const (
	Stopped  Phase = "stopped"
	Starting Phase = "starting"
	Ready    Phase = "ready"
)

type Manager struct {
	client *api.Client
	model  string
	unit   string

	probeInterval time.Duration
	probeTimeout  time.Duration
	startTimeout  time.Duration
	stopWait      time.Duration

	// run executes one service-control command. Swapped out in tests.
	run func(ctx context.Context, argv []string) error

	// phase is read by the status snapshot from outside the dispatch loop.
	mu    sync.Mutex
	phase Phase
}

func New(cfg config.OllamaConfig) (*Manager, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}

	m := &Manager{
		client:        api.NewClient(base, http.DefaultClient),
		model:         cfg.Model,
		unit:          cfg.Unit,
		probeInterval: time.Second,
		probeTimeout:  2 * time.Second,
		startTimeout:  cfg.StartTimeout,
		stopWait:      2 * time.Second,
		run:           runCommand,
		phase:         Stopped,
	}

	// Pick up a service that is already running from a previous session.
	if m.probe(context.Background()) {
		m.setPhase(Ready)
	}
	return m, nil
}

func runCommand(ctx context.Context, argv []string) error {
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", strings.Join(argv, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// probe reports whether the service answers its model-list endpoint.
func (m *Manager) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	_, err := m.client.List(ctx)
	return err == nil
}

// IsReady probes the service and reconciles the recorded phase with what the
// probe saw.
func (m *Manager) IsReady(ctx context.Context) bool {
	ready := m.probe(ctx)

	m.mu.Lock()
	if ready {
		m.phase = Ready
	} else if m.phase == Ready {
		m.phase = Stopped
	}
	m.mu.Unlock()

	return ready
}

// Phase is the snapshot the control socket serves. It never participates in
// transition logic.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Manager) setPhase(p Phase) {
	m.mu.Lock()
	m.phase = p
	m.mu.Unlock()
}

// Start brings the service up: issue the unit start (user unit first, system
// unit as fallback), poll readiness up to the configured timeout, then run a
// warm-up request so the first real turn is not penalized by model load.
// Idempotent: returns immediately when the service already answers.
func (m *Manager) Start(ctx context.Context) error {
	if m.probe(ctx) {
		m.setPhase(Ready)
		log.Debug("ollama already running")
		return nil
	}

	m.setPhase(Starting)
	log.Info("starting ollama service", "unit", m.unit)

	if err := m.control(ctx, "start"); err != nil {
		m.setPhase(Stopped)
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	deadline := time.Now().Add(m.startTimeout)
	for {
		if m.probe(ctx) {
			break
		}
		if time.Now().After(deadline) {
			m.setPhase(Stopped)
			return fmt.Errorf("%w after %s", ErrStartTimeout, m.startTimeout)
		}
		select {
		case <-ctx.Done():
			m.setPhase(Stopped)
			return ctx.Err()
		case <-time.After(m.probeInterval):
		}
	}

	m.warmUp(ctx)
	m.setPhase(Ready)
	log.Info("ollama service ready", "model", m.model)
	return nil
}

// Stop shuts the service down and verifies it stopped answering. Idempotent:
// returns immediately when the service is already unreachable.
func (m *Manager) Stop(ctx context.Context) error {
	if !m.probe(ctx) {
		m.setPhase(Stopped)
		log.Debug("ollama already stopped")
		return nil
	}

	log.Info("stopping ollama service", "unit", m.unit)

	if err := m.control(ctx, "stop"); err != nil {
		return fmt.Errorf("%w: %v", ErrStopFailed, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.stopWait):
	}

	if m.probe(ctx) {
		return fmt.Errorf("%w: still reachable after stop", ErrStopFailed)
	}

	m.setPhase(Stopped)
	return nil
}

// control runs `systemctl --user <verb> unit`, falling back to the system
// unit, matching how the appliance image installs ollama.
func (m *Manager) control(ctx context.Context, verb string) error {
	userErr := m.run(ctx, []string{"systemctl", "--user", verb, m.unit})
	if userErr == nil {
		return nil
	}

	sysErr := m.run(ctx, []string{"sudo", "systemctl", verb, m.unit})
	if sysErr == nil {
		return nil
	}
	return fmt.Errorf("user unit: %v; system unit: %v", userErr, sysErr)
}

// warmUp forces the model into memory with a throwaway generate call. Failure
// is logged but never blocks the wake: the service is up, only the first turn
// will be slower.
func (m *Manager) warmUp(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	stream := false
	req := &api.GenerateRequest{
		Model:  m.model,
		Prompt: "test",
		Stream: &stream,
	}

	start := time.Now()
	err := m.client.Generate(ctx, req, func(api.GenerateResponse) error { return nil })
	if err != nil {
		log.Warn("model warm-up failed", "model", m.model, "err", err)
		return
	}
	log.Debug("model warmed up", "model", m.model, "took", time.Since(start))
}
