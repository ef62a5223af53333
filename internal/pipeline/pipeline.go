// Package pipeline is the audio collaborator around the controller: it
// captures utterances, turns them into transcripts, produces spoken replies,
// and plays them. It never touches conversation state; everything it learns
// is posted back as controller events.
package pipeline

import (
	"context"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/waifuisalie/Talking-Buddy/internal/controller"
	"github.com/waifuisalie/Talking-Buddy/pkg/audioconv"
)

// The external tools behind each stage, small enough to fake in tests.
type recorder interface {
	Record(stop <-chan struct{}) ([]float32, error)
}

type transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

type responder interface {
	Respond(ctx context.Context, userInput string) (string, error)
}

type synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

type player interface {
	Play(path string) error
}

type Pipeline struct {
	rec    recorder
	stt    transcriber
	llm    responder
	tts    synthesizer
	player player

	post func(controller.Event)

	sampleRate int
	tempDir    string

	mu        sync.Mutex
	capturing bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func New(rec recorder, stt transcriber, chat responder, synth synthesizer, play player, sampleRate int, tempDir string, post func(controller.Event)) *Pipeline {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Pipeline{
		rec:        rec,
		stt:        stt,
		llm:        chat,
		tts:        synth,
		player:     play,
		post:       post,
		sampleRate: sampleRate,
		tempDir:    tempDir,
	}
}

// StartCapture begins the record-transcribe loop. Idempotent while running.
func (p *Pipeline) StartCapture() error {
	p.mu.Lock()
	if p.capturing {
		p.mu.Unlock()
		return nil
	}
	p.capturing = true
	p.stopCh = make(chan struct{})
	stop := p.stopCh
	p.mu.Unlock()

	// Join the previous loop before opening a new input stream.
	p.wg.Wait()

	p.wg.Add(1)
	go p.captureLoop(stop)

	log.Info("listening for speech")
	return nil
}

// StopCapture signals the loop to end. It does not wait: the loop drains on
// its own and a following StartCapture joins it first.
func (p *Pipeline) StopCapture() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.capturing {
		return
	}
	p.capturing = false
	close(p.stopCh)
}

func (p *Pipeline) captureLoop(stop <-chan struct{}) {
	defer p.wg.Done()

	for {
		select {
		case <-stop:
			return
		default:
		}

		pcm, err := p.rec.Record(stop)
		if err != nil {
			log.Error("capture failed", "err", err)
			select {
			case <-stop:
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if pcm == nil {
			continue
		}

		transcript, err := p.transcribe(pcm)
		if err != nil {
			log.Error("transcription failed", "err", err)
			continue
		}
		if transcript == "" {
			continue
		}

		log.Info("utterance finalized", "transcript", transcript)
		p.post(controller.Event{Kind: controller.EventUtterance, Transcript: transcript})
	}
}

func (p *Pipeline) transcribe(pcm []float32) (string, error) {
	wavPath := filepath.Join(p.tempDir, fmt.Sprintf("utterance_%d.wav", time.Now().UnixMilli()))
	if err := audioconv.WriteWAV(wavPath, pcm, p.sampleRate); err != nil {
		return "", err
	}
	defer os.Remove(wavPath)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return p.stt.Transcribe(ctx, wavPath)
}

// Respond produces the reply for one accepted transcript asynchronously and
// posts EventResponse, or EventTurnFailed when any stage breaks.
func (p *Pipeline) Respond(transcript string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		text, err := p.llm.Respond(ctx, transcript)
		if err != nil {
			p.post(controller.Event{Kind: controller.EventTurnFailed, Err: err})
			return
		}

		audioPath, err := p.tts.Synthesize(ctx, text)
		if err != nil {
			p.post(controller.Event{Kind: controller.EventTurnFailed, Err: err})
			return
		}

		log.Info("response ready", "chars", len(text))
		p.post(controller.Event{
			Kind:     controller.EventResponse,
			Response: controller.Response{Text: text, AudioPath: audioPath},
		})
	}()
}

// StartPlayback plays the reply asynchronously and posts EventPlaybackDone
// when the speaker goes quiet. A playback error still completes the turn;
// the turn must not wedge in Speaking because the DAC hiccuped.
func (p *Pipeline) StartPlayback(r controller.Response) {
	go func() {
		log.Info("speaking", "text", r.Text)

		if err := p.player.Play(r.AudioPath); err != nil {
			log.Error("playback failed", "err", err)
		}
		os.Remove(r.AudioPath)

		p.post(controller.Event{Kind: controller.EventPlaybackDone})
	}()
}
