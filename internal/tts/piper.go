// Package tts synthesizes speech by piping text into the piper binary.
package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/waifuisalie/Talking-Buddy/internal/config"
)

var (
	markdownRe = regexp.MustCompile("\\*\\*(.*?)\\*\\*|\\*(.*?)\\*|_(.*?)_|`(.*?)`")
	urlRe      = regexp.MustCompile(`https?://\S+`)
)

type Synthesizer struct {
	binary    string
	modelPath string
	tempDir   string

	mu        sync.Mutex
	tempFiles []string
}

func New(cfg config.PiperConfig) *Synthesizer {
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Synthesizer{
		binary:    cfg.Binary,
		modelPath: filepath.Join(cfg.ModelDir, cfg.Model),
		tempDir:   tempDir,
	}
}

// Synthesize renders text to a WAV file under the temp dir and returns its
// path. The caller owns playback; Cleanup removes accumulated files.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	clean := CleanForSpeech(text)
	if clean == "" {
		return "", fmt.Errorf("nothing to synthesize after cleanup")
	}

	outFile := filepath.Join(s.tempDir, fmt.Sprintf("tts_response_%d.wav", time.Now().UnixMilli()))

	cmd := exec.CommandContext(ctx, s.binary,
		"--model", s.modelPath,
		"--output_file", outFile,
	)
	cmd.Stdin = strings.NewReader(clean)

	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("piper: %w: %s", err, strings.TrimSpace(string(out)))
	}

	if _, err := os.Stat(outFile); err != nil {
		return "", fmt.Errorf("piper produced no output: %w", err)
	}

	s.mu.Lock()
	s.tempFiles = append(s.tempFiles, outFile)
	s.mu.Unlock()

	return outFile, nil
}

// Cleanup removes every temp file created so far.
func (s *Synthesizer) Cleanup() {
	s.mu.Lock()
	files := s.tempFiles
	s.tempFiles = nil
	s.mu.Unlock()

	for _, f := range files {
		os.Remove(f)
	}
}

// CleanForSpeech strips markdown markup, URLs and stray whitespace so the
// voice does not read formatting aloud.
func CleanForSpeech(text string) string {
	text = markdownRe.ReplaceAllString(text, "$1$2$3$4")
	text = urlRe.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}
