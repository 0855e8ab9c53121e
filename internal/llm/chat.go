package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNoChoices is returned when a chat completion carries no message.
var ErrNoChoices = errors.New("no choices in chat response")

// ChatConfig configures an OpenAI-compatible chat-completions endpoint.
type ChatConfig struct {
	BaseURL     string // e.g. https://api.groq.com/openai/v1
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
	// JSONMode requests response_format=json_object.
	JSONMode bool
}

// ChatClient talks to any OpenAI-compatible /chat/completions endpoint.
type ChatClient struct {
	cfg    ChatConfig
	http   *http.Client
	logger *slog.Logger
}

func NewChatClient(cfg ChatConfig, logger *slog.Logger) (*ChatClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("chat base url is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("chat model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// Complete sends one system+user exchange and returns the first choice's content.
func (c *ChatClient) Complete(ctx context.Context, system, user string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	messages := make([]map[string]string, 0, 2)
	if system != "" {
		messages = append(messages, map[string]string{"role": "system", "content": system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": user})

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages":    messages,
	}
	if c.cfg.JSONMode {
		body["response_format"] = map[string]any{"type": "json_object"}
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	c.logger.Info("llm.chat.request", "req_id", rid, "model", c.cfg.Model, "text_len", len(user))

	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.logger.Error("llm.chat.http_error", "req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.chat.decode_error", "req_id", rid, "error", err, "raw_bytes", len(raw))
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", ErrNoChoices
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	c.logger.Info("llm.chat.response", "req_id", rid, "bytes", len(content),
		"elapsed_ms", time.Since(start).Milliseconds())
	return content, nil
}

func (c *ChatClient) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("llm.chat.response_body_close_error", "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("chat status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}
