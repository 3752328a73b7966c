package provider

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// outcome is the tagged result of one provider call.
type outcome struct {
	provider string
	text     string
	err      error
}

// Aggregator fans a prompt out to all configured providers concurrently and
// selects one successful reply uniformly at random. Providers bound their own
// call duration; the aggregator waits for all of them and never cancels
// stragglers, since partial results are still useful.
type Aggregator struct {
	providers []Provider
	fallback  string
	logger    *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithRand sets the random source used for reply selection. Used by tests to
// make selection deterministic.
func WithRand(rng *rand.Rand) Option {
	return func(a *Aggregator) {
		a.rng = rng
	}
}

// NewAggregator creates an aggregator over the given providers. fallback is
// the non-empty sentinel returned when every provider fails; it is what gets
// persisted as the response in that case.
func NewAggregator(providers []Provider, fallback string, logger *slog.Logger, opts ...Option) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	a := &Aggregator{
		providers: providers,
		fallback:  fallback,
		logger:    logger.With("component", "aggregator"),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Fetch queries every provider with the same text and returns one reply.
// Failures are discarded; one non-empty success is chosen uniformly at
// random. When no provider succeeds the configured sentinel is returned, so
// the result is always non-empty.
func (a *Aggregator) Fetch(ctx context.Context, text string) string {
	outcomes := make([]outcome, len(a.providers))

	var wg sync.WaitGroup
	for i, p := range a.providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			reply, err := p.Answer(ctx, text)
			outcomes[i] = outcome{provider: p.Name(), text: reply, err: err}
		}(i, p)
	}
	wg.Wait()

	var candidates []string
	for _, o := range outcomes {
		if o.err != nil {
			a.logger.WarnContext(ctx, "Provider failed", "provider", o.provider, "error", o.err)
			continue
		}
		if strings.TrimSpace(o.text) == "" {
			a.logger.WarnContext(ctx, "Provider returned empty reply", "provider", o.provider)
			continue
		}
		candidates = append(candidates, o.text)
	}

	if len(candidates) == 0 {
		a.logger.ErrorContext(ctx, "All providers failed", "provider_count", len(a.providers))
		return a.fallback
	}

	a.logger.DebugContext(ctx, "Selecting reply", "candidates", len(candidates))
	return candidates[a.intn(len(candidates))]
}

func (a *Aggregator) intn(n int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rng.Intn(n)
}
