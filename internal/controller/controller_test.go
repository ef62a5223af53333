package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waifuisalie/Talking-Buddy/internal/config"
	"github.com/waifuisalie/Talking-Buddy/internal/timerbank"
)

type fakeLifecycle struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	starts   int
	stops    int
	running  bool
}

func (f *fakeLifecycle) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeLifecycle) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.stopErr != nil {
		return f.stopErr
	}
	f.running = false
	return nil
}

func (f *fakeLifecycle) isRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeLifecycle) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

type fakePipe struct {
	mu         sync.Mutex
	capturing  bool
	captureErr error
	responded  []string
	played     []Response
}

func (f *fakePipe) StartCapture() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return f.captureErr
	}
	f.capturing = true
	return nil
}

func (f *fakePipe) StopCapture() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capturing = false
}

func (f *fakePipe) Respond(transcript string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responded = append(f.responded, transcript)
}

func (f *fakePipe) StartPlayback(r Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, r)
}

func (f *fakePipe) isCapturing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capturing
}

func (f *fakePipe) respondedTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.responded...)
}

type harness struct {
	ctrl   *Controller
	svc    *fakeLifecycle
	pipe   *fakePipe
	timers *timerbank.Bank
	cancel context.CancelFunc
}

// startHarness boots a controller with short timeouts and a running loop.
func startHarness(t *testing.T, boot config.BootState, opts ...Option) *harness {
	t.Helper()

	svc := &fakeLifecycle{}
	pipe := &fakePipe{}
	timers := timerbank.New()

	ctrl := New(svc, pipe, timers, config.TimeoutConfig{
		Conversation: 80 * time.Millisecond,
		Idle:         200 * time.Millisecond,
	}, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx, boot) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("controller did not shut down")
		}
	})

	return &harness{ctrl: ctrl, svc: svc, pipe: pipe, timers: timers, cancel: cancel}
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ctrl.State() == want },
		2*time.Second, 2*time.Millisecond, "want state %s, at %s", want, h.ctrl.State())
}

// runFullTurn drives Listening → Processing → Speaking → PlaybackDone.
func (h *harness) runFullTurn(t *testing.T, transcript string) {
	t.Helper()
	h.ctrl.Post(Event{Kind: EventUtterance, Transcript: transcript})
	h.waitState(t, Processing)
	h.ctrl.Post(Event{Kind: EventResponse, Response: Response{Text: "ok", AudioPath: "/tmp/r.wav"}})
	h.waitState(t, Speaking)
	h.ctrl.Post(Event{Kind: EventPlaybackDone})
}

func TestWakeFromDeepSleepStartsService(t *testing.T) {
	h := startHarness(t, config.BootDeepSleep)
	h.waitState(t, DeepSleep)

	h.ctrl.Post(Event{Kind: EventWake})
	h.waitState(t, Listening)

	assert.True(t, h.svc.isRunning())
	assert.True(t, h.pipe.isCapturing())

	// Scenario A: no timers active after a cold wake.
	st := h.ctrl.Status()
	assert.False(t, st.ConversationTimer)
	assert.False(t, st.IdleTimer)
}

func TestWakeFailureStaysInDeepSleep(t *testing.T) {
	h := startHarness(t, config.BootDeepSleep)
	h.waitState(t, DeepSleep)

	h.svc.mu.Lock()
	h.svc.startErr = errors.New("unit failed")
	h.svc.mu.Unlock()

	h.ctrl.Post(Event{Kind: EventWake})

	// Scenario E: state unchanged, failure surfaced, no partial side effects.
	require.Eventually(t, func() bool { return h.ctrl.Status().WakeFailures == 1 },
		time.Second, 2*time.Millisecond)
	assert.Equal(t, DeepSleep, h.ctrl.State())
	assert.False(t, h.pipe.isCapturing())
	st := h.ctrl.Status()
	assert.False(t, st.ConversationTimer)
	assert.False(t, st.IdleTimer)

	// The wake word is retryable once the fault clears.
	h.svc.mu.Lock()
	h.svc.startErr = nil
	h.svc.mu.Unlock()

	h.ctrl.Post(Event{Kind: EventWake})
	h.waitState(t, Listening)
}

func TestCaptureFailureRollsBackService(t *testing.T) {
	h := startHarness(t, config.BootDeepSleep)
	h.waitState(t, DeepSleep)

	h.pipe.mu.Lock()
	h.pipe.captureErr = errors.New("no microphone")
	h.pipe.mu.Unlock()

	h.ctrl.Post(Event{Kind: EventWake})

	require.Eventually(t, func() bool { return h.ctrl.Status().WakeFailures == 1 },
		time.Second, 2*time.Millisecond)
	assert.Equal(t, DeepSleep, h.ctrl.State())
	assert.False(t, h.svc.isRunning(), "service must be rolled back when capture cannot start")
}

func TestWakeFromLightSleepCancelsIdleTimer(t *testing.T) {
	h := startHarness(t, config.BootLightSleep)
	h.waitState(t, LightSleep)
	require.True(t, h.ctrl.Status().IdleTimer)

	// Scenario D: wake before idle expiry.
	h.ctrl.Post(Event{Kind: EventWake})
	h.waitState(t, Listening)

	st := h.ctrl.Status()
	assert.False(t, st.IdleTimer)
	assert.False(t, st.ConversationTimer)
	assert.True(t, h.pipe.isCapturing())

	starts, _ := h.svc.counts()
	assert.Equal(t, 1, starts, "boot start only; light sleep keeps the service warm")
}

func TestDismissalRoutesToLightSleep(t *testing.T) {
	notified := make(chan struct{}, 1)
	h := startHarness(t, config.BootLightSleep, WithSleepNotify(func() {
		notified <- struct{}{}
	}))
	h.waitState(t, LightSleep)

	h.ctrl.Post(Event{Kind: EventWake})
	h.waitState(t, Listening)

	// Scenario B: a goodbye turn drops to light sleep with the idle timer on.
	h.runFullTurn(t, "tchau")
	h.waitState(t, LightSleep)

	st := h.ctrl.Status()
	assert.True(t, st.IdleTimer)
	assert.False(t, st.ConversationTimer)
	assert.False(t, h.pipe.isCapturing())
	assert.True(t, h.svc.isRunning(), "light sleep keeps the model warm")

	select {
	case <-notified:
	case <-time.After(time.Second):
		t.Fatal("sleep notification never sent")
	}
}

func TestNormalTurnResumesListening(t *testing.T) {
	h := startHarness(t, config.BootLightSleep)
	h.waitState(t, LightSleep)

	h.ctrl.Post(Event{Kind: EventWake})
	h.waitState(t, Listening)

	h.runFullTurn(t, "qual a previsão do tempo?")
	h.waitState(t, Listening)

	st := h.ctrl.Status()
	assert.True(t, st.ConversationTimer)
	assert.False(t, st.IdleTimer)
	assert.True(t, h.pipe.isCapturing())
	assert.Equal(t, []string{"qual a previsão do tempo?"}, h.pipe.respondedTo())
}

func TestConversationTimeoutEntersLightSleep(t *testing.T) {
	h := startHarness(t, config.BootLightSleep)
	h.waitState(t, LightSleep)

	h.ctrl.Post(Event{Kind: EventWake})
	h.waitState(t, Listening)

	// Scenario C: a full turn arms the conversation timer; silence lets it
	// fire and drop to light sleep.
	h.runFullTurn(t, "oi tudo bem")
	h.waitState(t, Listening)
	require.True(t, h.ctrl.Status().ConversationTimer)

	h.waitState(t, LightSleep)
	st := h.ctrl.Status()
	assert.True(t, st.IdleTimer)
	assert.False(t, st.ConversationTimer)
	assert.False(t, h.pipe.isCapturing())
}

func TestIdleTimeoutStopsServiceAndDeepSleeps(t *testing.T) {
	h := startHarness(t, config.BootLightSleep)
	h.waitState(t, LightSleep)

	h.waitState(t, DeepSleep)
	assert.False(t, h.svc.isRunning())
	st := h.ctrl.Status()
	assert.False(t, st.IdleTimer)
	assert.False(t, st.ConversationTimer)
}

func TestStopFailureStaysInLightSleepAndRetries(t *testing.T) {
	h := startHarness(t, config.BootLightSleep)
	h.waitState(t, LightSleep)

	h.svc.mu.Lock()
	h.svc.stopErr = errors.New("unit stuck")
	h.svc.mu.Unlock()

	// First idle expiry fails to stop; the controller must stay in light
	// sleep with the idle timer re-armed.
	require.Eventually(t, func() bool {
		_, stops := h.svc.counts()
		return stops >= 1
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, LightSleep, h.ctrl.State())
	assert.True(t, h.ctrl.Status().IdleTimer)

	// Once stopping works, the next expiry lands in deep sleep.
	h.svc.mu.Lock()
	h.svc.stopErr = nil
	h.svc.mu.Unlock()

	h.waitState(t, DeepSleep)
}

func TestWakeIdempotentWhileActive(t *testing.T) {
	h := startHarness(t, config.BootLightSleep)
	h.waitState(t, LightSleep)

	h.ctrl.Post(Event{Kind: EventWake})
	h.waitState(t, Listening)

	for _, drive := range []func(){
		func() {},
		func() {
			h.ctrl.Post(Event{Kind: EventUtterance, Transcript: "conta uma piada"})
			h.waitState(t, Processing)
		},
		func() {
			h.ctrl.Post(Event{Kind: EventResponse, Response: Response{Text: "ok"}})
			h.waitState(t, Speaking)
		},
	} {
		drive()
		before := h.ctrl.Status()

		h.ctrl.Post(Event{Kind: EventWake})
		time.Sleep(20 * time.Millisecond)

		after := h.ctrl.Status()
		assert.Equal(t, before.State, after.State)
		assert.Equal(t, before.ConversationTimer, after.ConversationTimer)
		assert.Equal(t, before.IdleTimer, after.IdleTimer)
	}
}

func TestEmptyUtteranceDiscarded(t *testing.T) {
	h := startHarness(t, config.BootListening)
	h.waitState(t, Listening)

	for _, transcript := range []string{"", "   ", ".", "a"} {
		h.ctrl.Post(Event{Kind: EventUtterance, Transcript: transcript})
	}
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, Listening, h.ctrl.State())
	assert.Empty(t, h.pipe.respondedTo())
	assert.True(t, h.pipe.isCapturing())
}

func TestTurnFailureReturnsToListening(t *testing.T) {
	h := startHarness(t, config.BootListening)
	h.waitState(t, Listening)

	h.ctrl.Post(Event{Kind: EventUtterance, Transcript: "pergunta difícil"})
	h.waitState(t, Processing)

	h.ctrl.Post(Event{Kind: EventTurnFailed, Err: errors.New("model exploded")})
	h.waitState(t, Listening)

	assert.True(t, h.pipe.isCapturing())
	assert.True(t, h.ctrl.Status().ConversationTimer)
}

// Timer exclusivity: across a whole conversation arc at most one timer is
// active and it always matches the state.
func TestTimerExclusivityInvariant(t *testing.T) {
	h := startHarness(t, config.BootLightSleep)
	h.waitState(t, LightSleep)

	check := func() {
		st := h.ctrl.Status()
		if st.ConversationTimer && st.IdleTimer {
			t.Fatalf("both timers active in state %s", st.State)
		}
		if st.IdleTimer {
			assert.Equal(t, LightSleep, st.State)
		}
		if st.ConversationTimer {
			assert.Equal(t, Listening, st.State)
		}
	}

	check()
	h.ctrl.Post(Event{Kind: EventWake})
	h.waitState(t, Listening)
	check()

	h.ctrl.Post(Event{Kind: EventUtterance, Transcript: "me ajuda com uma coisa"})
	h.waitState(t, Processing)
	check()

	h.ctrl.Post(Event{Kind: EventResponse, Response: Response{Text: "claro"}})
	h.waitState(t, Speaking)
	check()

	h.ctrl.Post(Event{Kind: EventPlaybackDone})
	h.waitState(t, Listening)
	check()
}
