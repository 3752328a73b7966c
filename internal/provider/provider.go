// Package provider implements the answer backends and the aggregator that
// fans a prompt out to all of them and selects one reply.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Failure classes for answer backends. Every error returned by a Provider
// wraps exactly one of these, carrying a human-readable cause; providers
// never panic and never return an unclassified fault.
var (
	// ErrNetwork covers connection failures, timeouts, and cancelled calls.
	ErrNetwork = errors.New("network failure")
	// ErrUpstream covers error responses from the backend itself.
	ErrUpstream = errors.New("upstream error")
	// ErrInvalidResponse covers malformed or empty backend payloads.
	ErrInvalidResponse = errors.New("invalid response")
)

// Provider is one external backend capable of producing a text answer to a
// prompt. Implementations own their timeout and retry policy.
type Provider interface {
	// Name identifies the backend in logs.
	Name() string

	// Answer returns a non-empty reply to the given text, or an error
	// wrapping one of the failure classes above.
	Answer(ctx context.Context, text string) (string, error)
}

// composePrompt wraps outbound text in the prompt convention shared by all
// providers. Without a system prompt the user text passes through unchanged.
func composePrompt(systemPrompt, text string) string {
	if systemPrompt == "" {
		return text
	}
	return fmt.Sprintf("system: %s\nuser: %s", systemPrompt, text)
}
