// Package llm produces the assistant's reply for one user turn through the
// local Ollama chat endpoint, carrying the rolling conversation as context.
package llm

import (
	"context"
	"fmt"
	log "log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/waifuisalie/Talking-Buddy/internal/config"
	"github.com/waifuisalie/Talking-Buddy/internal/history"
)

const contextTurns = 8

type Client struct {
	api         *api.Client
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	history     *history.Manager
}

func New(cfg config.OllamaConfig, hist *history.Manager) (*Client, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}

	return &Client{
		api:         api.NewClient(base, http.DefaultClient),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     30 * time.Second,
		history:     hist,
	}, nil
}

// Respond records the user turn, asks the model with recent context, records
// and returns the reply.
func (c *Client) Respond(ctx context.Context, userInput string) (string, error) {
	c.history.AddUser(userInput)

	msgs := make([]api.Message, 0, contextTurns)
	for _, e := range c.history.Recent(contextTurns) {
		msgs = append(msgs, api.Message{Role: e.Role, Content: e.Content})
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": c.temperature,
			"num_predict": c.maxTokens,
		},
	}

	var reply strings.Builder
	start := time.Now()
	err := c.api.Chat(ctx, req, func(resp api.ChatResponse) error {
		reply.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}

	text := strings.TrimSpace(reply.String())
	if text == "" {
		return "", fmt.Errorf("ollama returned an empty reply")
	}

	c.history.AddAssistant(text)
	log.Debug("reply generated", "model", c.model, "took", time.Since(start), "chars", len(text))
	return text, nil
}
