package controller

import "time"

type State string

const (
	DeepSleep  State = "deep_sleep"
	LightSleep State = "light_sleep"
	Listening  State = "listening"
	Processing State = "processing"
	Speaking   State = "speaking"
)

type EventKind string

const (
	// EventWake is the trigger phrase, from whichever wake source is wired.
	EventWake EventKind = "wake"
	// EventUtterance carries one finalized transcript from the capture side.
	EventUtterance EventKind = "utterance"
	// EventResponse carries the synthesized reply, ready for playback.
	EventResponse EventKind = "response"
	// EventTurnFailed aborts a turn whose response could not be produced.
	EventTurnFailed EventKind = "turn_failed"
	// EventPlaybackDone signals the speaker finished the reply.
	EventPlaybackDone EventKind = "playback_done"
	// EventConversationTimeout and EventIdleTimeout are timer fires.
	EventConversationTimeout EventKind = "conversation_timeout"
	EventIdleTimeout         EventKind = "idle_timeout"
)

// Response is one synthesized reply: the text for the transcript log and the
// rendered audio for playback.
type Response struct {
	Text      string
	AudioPath string
}

// Event is the only way anything influences the controller. Producers post
// them; the dispatch loop consumes them strictly in arrival order.
type Event struct {
	Kind       EventKind
	At         time.Time
	Transcript string
	Response   Response
	Err        error
}
