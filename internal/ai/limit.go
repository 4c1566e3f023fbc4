package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	appErr "github.com/xxxsen/paperpilot/internal/pkg/errors"
)

type LimitConfig struct {
	MaxInFlight   int
	RatePerSecond float64
}

// WrapLimits bounds a provider: at most MaxInFlight concurrent backend
// calls, an optional request rate cap, and a circuit breaker around
// generation. Requests that cannot get a slot before their context expires
// fail with a retryable busy error instead of fanning out unbounded.
func WrapLimits(p IProvider, cfg LimitConfig) IProvider {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 8
	}
	limited := &limitedProvider{
		next: p,
		sem:  semaphore.NewWeighted(int64(cfg.MaxInFlight)),
	}
	if cfg.RatePerSecond > 0 {
		limited.rate = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.MaxInFlight)
	}
	limited.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    p.Name() + "-generate",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures*2 > counts.Requests
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logutil.GetLogger(context.Background()).Warn("ai breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return limited
}

type limitedProvider struct {
	next    IProvider
	sem     *semaphore.Weighted
	rate    *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func (p *limitedProvider) Name() string {
	return p.next.Name()
}

func (p *limitedProvider) acquire(ctx context.Context) (func(), error) {
	if p.rate != nil {
		if err := p.rate.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", appErr.ErrBackendBusy, err)
		}
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrBackendBusy, err)
	}
	return func() { p.sem.Release(1) }, nil
}

func (p *limitedProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	release, err := p.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()
	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.next.Generate(ctx, model, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", appErr.ErrBackendBusy, err)
		}
		return "", err
	}
	return out.(string), nil
}

func (p *limitedProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	release, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return p.next.Embed(ctx, model, text, taskType)
}
