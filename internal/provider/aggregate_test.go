package provider

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
)

// stubProvider answers with a fixed reply or a fixed error.
type stubProvider struct {
	name  string
	reply string
	err   error
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Answer(context.Context, string) (string, error) {
	return s.reply, s.err
}

func TestFetchSingleSuccess(t *testing.T) {
	t.Parallel()

	providers := []Provider{
		&stubProvider{name: "a", err: fmt.Errorf("%w: boom", ErrUpstream)},
		&stubProvider{name: "b", reply: "hello"},
		&stubProvider{name: "c", err: fmt.Errorf("%w: down", ErrNetwork)},
	}
	a := NewAggregator(providers, "fallback", nil)

	if got := a.Fetch(context.Background(), "hi"); got != "hello" {
		t.Errorf("Fetch = %q, want the only successful reply %q", got, "hello")
	}
}

func TestFetchAllFailed(t *testing.T) {
	t.Parallel()

	providers := []Provider{
		&stubProvider{name: "a", err: fmt.Errorf("%w: boom", ErrUpstream)},
		&stubProvider{name: "b", err: fmt.Errorf("%w: bad payload", ErrInvalidResponse)},
	}
	a := NewAggregator(providers, "nothing to say", nil)

	if got := a.Fetch(context.Background(), "hi"); got != "nothing to say" {
		t.Errorf("Fetch = %q, want fallback sentinel", got)
	}
}

func TestFetchNoProviders(t *testing.T) {
	t.Parallel()

	a := NewAggregator(nil, "nothing to say", nil)

	if got := a.Fetch(context.Background(), "hi"); got != "nothing to say" {
		t.Errorf("Fetch with no providers = %q, want fallback sentinel", got)
	}
}

func TestFetchDiscardsEmptyReplies(t *testing.T) {
	t.Parallel()

	providers := []Provider{
		&stubProvider{name: "a", reply: "   "},
		&stubProvider{name: "b", reply: "real answer"},
	}
	a := NewAggregator(providers, "fallback", nil)

	if got := a.Fetch(context.Background(), "hi"); got != "real answer" {
		t.Errorf("Fetch = %q, want the non-empty reply", got)
	}
}

func TestFetchSelectsUniformly(t *testing.T) {
	t.Parallel()

	providers := []Provider{
		&stubProvider{name: "a", reply: "alpha"},
		&stubProvider{name: "b", reply: "beta"},
	}
	a := NewAggregator(providers, "fallback", nil,
		WithRand(rand.New(rand.NewSource(1))))

	seen := make(map[string]int)
	for i := 0; i < 200; i++ {
		seen[a.Fetch(context.Background(), "hi")]++
	}

	if len(seen) != 2 {
		t.Fatalf("selection hit %d distinct replies, want 2: %v", len(seen), seen)
	}
	for reply, n := range seen {
		if n < 50 {
			t.Errorf("reply %q selected %d/200 times, selection looks biased: %v", reply, n, seen)
		}
	}
}
