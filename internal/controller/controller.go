// Package controller owns the conversation state machine. It is the single
// authority over the five states and the only component allowed to start or
// stop the model service, the capture side, or the timers. Everything that
// happens to it arrives as an Event through one queue, so transitions never
// interleave and simultaneous signals are resolved by arrival order instead
// of lock races.
package controller

import (
	"context"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/waifuisalie/Talking-Buddy/internal/config"
	"github.com/waifuisalie/Talking-Buddy/internal/dismissal"
	"github.com/waifuisalie/Talking-Buddy/internal/timerbank"
)

// Lifecycle is the model-service side the controller commands. Both calls
// block the dispatch loop on purpose: no transition may proceed while the
// service's readiness is indeterminate.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// AudioPipeline is the capture/response/playback collaborator. Respond and
// StartPlayback must not block; their results come back as events.
type AudioPipeline interface {
	StartCapture() error
	StopCapture()
	Respond(transcript string)
	StartPlayback(r Response)
}

// Status is the read-only snapshot the control socket serves. It never
// participates in transition logic.
type Status struct {
	State             State `json:"state"`
	ConversationTimer bool  `json:"conversation_timer"`
	IdleTimer         bool  `json:"idle_timer"`
	WakeFailures      int   `json:"wake_failures"`
}

type Controller struct {
	machine *fsm.FSM
	events  chan Event

	svc    Lifecycle
	pipe   AudioPipeline
	timers *timerbank.Bank

	convTimeout time.Duration
	idleTimeout time.Duration

	// sleepNotify pings the wake channel that the appliance is dozing off.
	sleepNotify func()
	// onTransition feeds the monitor. Optional.
	onTransition func(from, to State)

	// Owned exclusively by the dispatch loop.
	pendingDismissal bool

	mu           sync.Mutex
	wakeFailures int

	wg sync.WaitGroup
}

type Option func(*Controller)

func WithSleepNotify(fn func()) Option {
	return func(c *Controller) { c.sleepNotify = fn }
}

func WithTransitionHook(fn func(from, to State)) Option {
	return func(c *Controller) { c.onTransition = fn }
}

func New(svc Lifecycle, pipe AudioPipeline, timers *timerbank.Bank, timeouts config.TimeoutConfig, opts ...Option) *Controller {
	c := &Controller{
		events:      make(chan Event, 64),
		svc:         svc,
		pipe:        pipe,
		timers:      timers,
		convTimeout: timeouts.Conversation,
		idleTimeout: timeouts.Idle,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.machine = fsm.NewFSM(
		string(LightSleep),
		fsm.Events{
			{Name: "wake", Src: []string{string(DeepSleep), string(LightSleep)}, Dst: string(Listening)},
			{Name: "hear", Src: []string{string(Listening)}, Dst: string(Processing)},
			{Name: "respond", Src: []string{string(Processing)}, Dst: string(Speaking)},
			{Name: "abort", Src: []string{string(Processing)}, Dst: string(Listening)},
			{Name: "resume", Src: []string{string(Speaking)}, Dst: string(Listening)},
			{Name: "dismiss", Src: []string{string(Speaking)}, Dst: string(LightSleep)},
			{Name: "tire", Src: []string{string(Listening)}, Dst: string(LightSleep)},
			{Name: "hibernate", Src: []string{string(LightSleep)}, Dst: string(DeepSleep)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Info("state change", "from", e.Src, "to", e.Dst, "event", e.Event)
				if c.onTransition != nil {
					c.onTransition(State(e.Src), State(e.Dst))
				}
			},
		},
	)

	return c
}

// Post enqueues an event for the dispatch loop. Safe from any goroutine.
func (c *Controller) Post(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	c.events <- ev
}

// State returns the current state. Snapshot only; by the time the caller
// looks at it the loop may have moved on.
func (c *Controller) State() State {
	return State(c.machine.Current())
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	failures := c.wakeFailures
	c.mu.Unlock()

	return Status{
		State:             c.State(),
		ConversationTimer: c.timers.Active(timerbank.Conversation),
		IdleTimer:         c.timers.Active(timerbank.Idle),
		WakeFailures:      failures,
	}
}

// Boot applies the configured initial state and its side effects, then starts
// the dispatch loop. Run blocks until ctx is cancelled.
func (c *Controller) Run(ctx context.Context, boot config.BootState) error {
	if err := c.boot(ctx, boot); err != nil {
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-c.events:
				c.dispatch(ctx, ev)
			}
		}
	}()

	<-ctx.Done()
	c.shutdown()
	c.wg.Wait()
	return nil
}

func (c *Controller) boot(ctx context.Context, boot config.BootState) error {
	switch boot {
	case config.BootListening:
		if err := c.svc.Start(ctx); err != nil {
			return err
		}
		if err := c.pipe.StartCapture(); err != nil {
			return err
		}
		c.machine.SetState(string(Listening))
		log.Info("booted", "state", Listening)

	case config.BootDeepSleep:
		if err := c.svc.Stop(ctx); err != nil {
			log.Warn("could not stop service on boot", "err", err)
		}
		c.machine.SetState(string(DeepSleep))
		log.Info("booted", "state", DeepSleep)

	default: // light sleep
		if err := c.svc.Start(ctx); err != nil {
			return err
		}
		c.machine.SetState(string(LightSleep))
		c.startIdleTimer()
		log.Info("booted", "state", LightSleep)
	}
	return nil
}

func (c *Controller) shutdown() {
	c.timers.CancelAll()
	if c.State() == Listening {
		c.pipe.StopCapture()
	}
}

// dispatch applies one event. This is the only place state, timers, capture
// or the service are touched, so every transition's side effects run exactly
// once and in order.
func (c *Controller) dispatch(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventWake:
		c.onWake(ctx)
	case EventUtterance:
		c.onUtterance(ctx, ev.Transcript)
	case EventResponse:
		c.onResponse(ctx, ev.Response)
	case EventTurnFailed:
		c.onTurnFailed(ctx, ev)
	case EventPlaybackDone:
		c.onPlaybackDone(ctx)
	case EventConversationTimeout:
		c.onConversationTimeout(ctx)
	case EventIdleTimeout:
		c.onIdleTimeout(ctx)
	default:
		log.Warn("unknown event discarded", "kind", ev.Kind)
	}
}

func (c *Controller) onWake(ctx context.Context) {
	switch c.State() {
	case Listening, Processing, Speaking:
		// Already in a conversation; a wake word never interrupts a turn.
		log.Debug("wake ignored, already active", "state", c.State())
		return

	case LightSleep:
		c.timers.Cancel(timerbank.Idle)
		if err := c.pipe.StartCapture(); err != nil {
			log.Warn("wake failed, capture did not start", "err", err)
			c.recordWakeFailure()
			c.startIdleTimer()
			return
		}
		c.mustEvent(ctx, "wake")

	case DeepSleep:
		// Blocks the loop: nothing else may transition while the service
		// is coming up.
		if err := c.svc.Start(ctx); err != nil {
			log.Warn("wake failed, service did not start", "err", err)
			c.recordWakeFailure()
			return
		}
		if err := c.pipe.StartCapture(); err != nil {
			log.Warn("wake failed, capture did not start", "err", err)
			c.recordWakeFailure()
			// Roll the service back so deep sleep means stopped.
			if stopErr := c.svc.Stop(ctx); stopErr != nil {
				log.Warn("rollback stop failed", "err", stopErr)
			}
			return
		}
		c.mustEvent(ctx, "wake")
	}
}

func (c *Controller) onUtterance(ctx context.Context, transcript string) {
	if c.State() != Listening {
		// Capture is stopped outside Listening, so this is a straggler.
		log.Debug("utterance ignored", "state", c.State())
		return
	}

	transcript = strings.TrimSpace(transcript)
	if !usable(transcript) {
		log.Debug("utterance discarded, nothing usable", "transcript", transcript)
		return
	}

	c.pendingDismissal = dismissal.IsDismissal(transcript)
	if c.pendingDismissal {
		log.Info("dismissal detected, sleeping after response", "matched", dismissal.Matched(transcript))
	}

	// Cancel before anything else: a slow model must never let the
	// conversation timer fire mid-turn.
	c.timers.Cancel(timerbank.Conversation)
	c.pipe.StopCapture()
	c.mustEvent(ctx, "hear")
	c.pipe.Respond(transcript)
}

func (c *Controller) onResponse(ctx context.Context, r Response) {
	if c.State() != Processing {
		log.Debug("response ignored", "state", c.State())
		return
	}
	c.mustEvent(ctx, "respond")
	c.pipe.StartPlayback(r)
}

func (c *Controller) onTurnFailed(ctx context.Context, ev Event) {
	if c.State() != Processing {
		log.Debug("turn failure ignored", "state", c.State())
		return
	}
	log.Warn("turn failed, back to listening", "err", ev.Err)

	c.pendingDismissal = false
	c.mustEvent(ctx, "abort")
	if err := c.pipe.StartCapture(); err != nil {
		log.Error("capture restart failed after aborted turn", "err", err)
	}
	c.startConversationTimer()
}

func (c *Controller) onPlaybackDone(ctx context.Context) {
	if c.State() != Speaking {
		log.Debug("playback completion ignored", "state", c.State())
		return
	}

	if c.pendingDismissal {
		c.pendingDismissal = false
		c.mustEvent(ctx, "dismiss")
		c.enterLightSleep()
		return
	}

	c.mustEvent(ctx, "resume")
	if err := c.pipe.StartCapture(); err != nil {
		log.Error("capture restart failed after response", "err", err)
	}
	c.startConversationTimer()
}

func (c *Controller) onConversationTimeout(ctx context.Context) {
	if c.State() != Listening {
		log.Debug("conversation timeout ignored", "state", c.State())
		return
	}
	log.Info("conversation timed out")

	c.pipe.StopCapture()
	c.mustEvent(ctx, "tire")
	c.enterLightSleep()
}

func (c *Controller) onIdleTimeout(ctx context.Context) {
	if c.State() != LightSleep {
		log.Debug("idle timeout ignored", "state", c.State())
		return
	}
	log.Info("idle timed out, entering deep sleep")

	if err := c.svc.Stop(ctx); err != nil {
		// Best-effort: stay in light sleep and retry on the next expiry
		// rather than pretend the service is gone.
		log.Warn("service stop failed, staying in light sleep", "err", err)
		c.startIdleTimer()
		return
	}
	c.mustEvent(ctx, "hibernate")
}

func (c *Controller) enterLightSleep() {
	c.startIdleTimer()
	if c.sleepNotify != nil {
		c.sleepNotify()
	}
}

func (c *Controller) startConversationTimer() {
	c.timers.Start(timerbank.Conversation, c.convTimeout, func() {
		c.Post(Event{Kind: EventConversationTimeout})
	})
}

func (c *Controller) startIdleTimer() {
	c.timers.Start(timerbank.Idle, c.idleTimeout, func() {
		c.Post(Event{Kind: EventIdleTimeout})
	})
}

// mustEvent fires a transition whose guard was already checked. A refusal
// here is a programming error; log it instead of crashing the loop.
func (c *Controller) mustEvent(ctx context.Context, name string) {
	if err := c.machine.Event(ctx, name); err != nil {
		log.Error("invalid transition attempt", "event", name, "state", c.State(), "err", err)
	}
}

func (c *Controller) recordWakeFailure() {
	c.mu.Lock()
	c.wakeFailures++
	c.mu.Unlock()
}

// usable filters out blank or single-character transcripts that whisper
// sometimes emits for breath noise.
func usable(transcript string) bool {
	letters := 0
	for _, r := range transcript {
		if r != ' ' && r != '.' && r != ',' && r != '?' && r != '!' {
			letters++
		}
	}
	return letters >= 2
}
