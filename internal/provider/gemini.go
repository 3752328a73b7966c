package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/mirbot/mirbot/internal/config"
)

// GeminiProvider produces answers through the Gemini API. Retriable API
// errors (500/503) are retried a bounded number of times with a fixed delay.
type GeminiProvider struct {
	client       *genai.Client
	model        string
	systemPrompt string
	maxRetries   int
	retryDelay   time.Duration
	logger       *slog.Logger
}

// NewGeminiProvider creates the Gemini answer backend. It requires an API key.
func NewGeminiProvider(ctx context.Context, cfg config.GeminiConfig, systemPrompt string, logger *slog.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	log := logger.With("component", "gemini_provider")
	log.Info("Gemini provider initialized", "model", cfg.Model)

	return &GeminiProvider{
		client:       client,
		model:        cfg.Model,
		systemPrompt: systemPrompt,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		logger:       log,
	}, nil
}

// Name identifies the backend in logs.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Answer sends the prompt to Gemini and returns the reply text. The returned
// error always wraps one of the package failure classes.
func (p *GeminiProvider) Answer(ctx context.Context, text string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(composePrompt(p.systemPrompt, text), genai.RoleUser),
	}

	resp, err := p.generateWithRetries(ctx, contents)
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(resp.Text())
	if reply == "" {
		return "", fmt.Errorf("%w: empty reply text", ErrInvalidResponse)
	}
	return reply, nil
}

func (p *GeminiProvider) generateWithRetries(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= p.maxRetries; i++ {
		resp, err = p.client.Models.GenerateContent(ctx, p.model, contents, nil)
		if err == nil {
			return resp, nil
		}

		p.logger.WarnContext(ctx, "Gemini API call failed, checking for retry",
			"attempt", i+1, "max_retries", p.maxRetries, "error", err)

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) {
			if (apiErr.Code == 500 || apiErr.Code == 503) && i < p.maxRetries {
				p.logger.InfoContext(ctx, "Retrying Gemini API call", "delay", p.retryDelay, "code", apiErr.Code)
				select {
				case <-ctx.Done():
					return nil, fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
				case <-time.After(p.retryDelay):
				}
				continue
			}
			return nil, fmt.Errorf("%w: gemini API error code %d: %v", ErrUpstream, apiErr.Code, err)
		}

		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	return nil, fmt.Errorf("%w: gemini API call failed after %d retries: %v", ErrUpstream, p.maxRetries, err)
}
