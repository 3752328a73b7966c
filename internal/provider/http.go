package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mirbot/mirbot/internal/config"
)

// HTTPProvider talks to an OpenAI-compatible chat completions endpoint.
// Transient failures are retried with exponential backoff (backoff base
// doubling per attempt) up to a configured number of retries; connect and
// total-call timeouts bound every attempt.
type HTTPProvider struct {
	name         string
	baseURL      string
	apiKey       string
	model        string
	systemPrompt string
	client       *http.Client
	maxRetries   int
	backoffBase  time.Duration
	logger       *slog.Logger
}

// NewHTTPProvider creates an answer backend for one configured endpoint.
func NewHTTPProvider(cfg config.EndpointConfig, systemPrompt string, logger *slog.Logger) *HTTPProvider {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	client := &http.Client{
		Timeout: cfg.TotalTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: cfg.ConnectTimeout,
			}).DialContext,
		},
	}

	return &HTTPProvider{
		name:         cfg.Name,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		systemPrompt: systemPrompt,
		client:       client,
		maxRetries:   cfg.MaxRetries,
		backoffBase:  cfg.BackoffBase,
		logger:       logger.With("component", "http_provider", "provider", cfg.Name),
	}
}

// Name identifies the backend in logs.
func (p *HTTPProvider) Name() string {
	return p.name
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Answer sends the prompt to the endpoint, retrying transient failures with
// exponential backoff. The returned error always wraps one of the package
// failure classes.
func (p *HTTPProvider) Answer(ctx context.Context, text string) (string, error) {
	prompt := composePrompt(p.systemPrompt, text)

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.backoffBase * (1 << (attempt - 1))
			p.logger.InfoContext(ctx, "Retrying provider call",
				"attempt", attempt, "max_retries", p.maxRetries, "delay", delay)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
			case <-time.After(delay):
			}
		}

		reply, retryable, err := p.call(ctx, prompt)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		p.logger.WarnContext(ctx, "Provider call failed",
			"attempt", attempt+1, "retryable", retryable, "error", err)

		if !retryable {
			break
		}
	}

	return "", lastErr
}

// call performs one request against the endpoint. The second return value
// reports whether the failure is transient and worth retrying.
func (p *HTTPProvider) call(ctx context.Context, prompt string) (string, bool, error) {
	body, err := json.Marshal(chatRequest{
		Model:    p.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", false, fmt.Errorf("%w: failed to encode request: %v", ErrInvalidResponse, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("%w: failed to create request: %v", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			p.logger.WarnContext(ctx, "Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", retryable, fmt.Errorf("%w: unexpected status code %d", ErrUpstream, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", true, fmt.Errorf("%w: failed to read response body: %v", ErrNetwork, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", false, fmt.Errorf("%w: malformed payload: %v", ErrInvalidResponse, err)
	}

	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("%w: no choices in payload", ErrInvalidResponse)
	}

	reply := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if reply == "" {
		return "", false, fmt.Errorf("%w: empty reply text", ErrInvalidResponse)
	}

	return reply, false, nil
}
