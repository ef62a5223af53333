package pipeline

import (
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/waifuisalie/Talking-Buddy/internal/config"
	"github.com/waifuisalie/Talking-Buddy/pkg/audioconv"
)

// frameDuration is the endpointing granularity: RMS is judged per frame.
const frameDuration = 20 * time.Millisecond

// Recorder captures one utterance at a time from the default input device.
// Endpointing is a plain RMS gate: speech starts when a frame crosses the
// threshold and ends after silenceDuration of quiet frames.
type Recorder struct {
	sampleRate       int
	frameSize        int
	threshold        float64
	silenceDuration  time.Duration
	minUtterance     time.Duration
	maxUtterance     time.Duration
}

func NewRecorder(cfg config.AudioConfig) *Recorder {
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = 16000
	}
	return &Recorder{
		sampleRate:      sr,
		frameSize:       sr * int(frameDuration.Milliseconds()) / 1000,
		threshold:       cfg.SilenceThreshold,
		silenceDuration: cfg.SilenceDuration,
		minUtterance:    cfg.MinUtterance,
		maxUtterance:    cfg.MaxUtterance,
	}
}

// Init and Terminate bracket the portaudio session for the whole process.
func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Terminate() {
	portaudio.Terminate()
}

// Record blocks until one utterance is endpointed, the stop channel closes,
// or maxUtterance elapses mid-speech. Returns nil samples when stopped before
// any speech, or when the captured speech is shorter than minUtterance.
func (r *Recorder) Record(stop <-chan struct{}) ([]float32, error) {
	buf := make([]float32, r.frameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(r.sampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	defer stream.Stop()

	var (
		out           []float32
		speaking      bool
		silenceFrames int
	)

	silenceLimit := int(r.silenceDuration / frameDuration)
	if silenceLimit < 1 {
		silenceLimit = 1
	}
	maxFrames := int(r.maxUtterance / frameDuration)

	speechFrames := 0
	for maxFrames <= 0 || speechFrames < maxFrames {
		select {
		case <-stop:
			return nil, nil
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("read input stream: %w", err)
		}

		rms := audioconv.FrameRMS(buf)

		if rms > r.threshold {
			speaking = true
			silenceFrames = 0
			speechFrames++
			out = append(out, buf...)
			continue
		}

		if !speaking {
			continue
		}

		silenceFrames++
		if silenceFrames >= silenceLimit {
			break
		}
		speechFrames++
		out = append(out, buf...)
	}

	if min := int(r.minUtterance/frameDuration) * r.frameSize; len(out) < min {
		return nil, nil
	}
	return out, nil
}
