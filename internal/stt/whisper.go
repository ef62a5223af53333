// Package stt transcribes finished utterances by shelling out to whisper-cli.
package stt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/waifuisalie/Talking-Buddy/internal/config"
)

// whisper-cli emits bracketed annotations like [BLANK_AUDIO] or (wind noise)
// instead of words when there is nothing to transcribe.
var annotationRe = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)

type Transcriber struct {
	binary   string
	model    string
	language string
	threads  int
}

func New(cfg config.WhisperConfig) *Transcriber {
	threads := cfg.Threads
	if threads <= 0 {
		threads = 4
	}
	return &Transcriber{
		binary:   cfg.Binary,
		model:    cfg.Model,
		language: cfg.Language,
		threads:  threads,
	}
}

// Transcribe runs whisper-cli on wavPath and returns the cleaned transcript.
// An empty string with a nil error means the audio carried no speech.
func (t *Transcriber) Transcribe(ctx context.Context, wavPath string) (string, error) {
	cmd := exec.CommandContext(ctx, t.binary,
		"-m", t.model,
		"-l", t.language,
		"-t", strconv.Itoa(t.threads),
		"--no-timestamps",
		"-otxt",
		"-f", wavPath,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("whisper-cli: %w: %s", err, firstLine(out))
	}

	// whisper-cli -otxt writes <input>.txt next to the input file.
	txtPath := wavPath + ".txt"
	data, err := os.ReadFile(txtPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Older builds print to stdout only.
			return clean(string(out)), nil
		}
		return "", fmt.Errorf("read transcript: %w", err)
	}
	defer os.Remove(txtPath)

	return clean(string(data)), nil
}

func clean(text string) string {
	text = annotationRe.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

func firstLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
