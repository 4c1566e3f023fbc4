package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

var ErrUnavailable = errors.New("ai backend unavailable")

// Task types passed to embedding backends that distinguish storage-side and
// query-side vectors.
const (
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	TaskTypeQuery    = "RETRIEVAL_QUERY"
)

type IProvider interface {
	Name() string
	Generate(ctx context.Context, model string, prompt string) (string, error)
	Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error)
}

type IGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// EmbedResult carries the outcome for one input of a batch: either a vector
// or a typed failure. Partial backend failures never drop items.
type EmbedResult struct {
	Vector []float32
	Err    error
}

type IEmbedder interface {
	EmbedOne(ctx context.Context, text string, taskType string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, taskType string) []EmbedResult
	ModelName() string
}

type generator struct {
	provider IProvider
	model    string
	timeout  time.Duration
}

func NewGenerator(p IProvider, model string, timeout time.Duration) IGenerator {
	return &generator{provider: p, model: model, timeout: timeout}
}

func (g *generator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	resp, err := g.provider.Generate(ctx, g.model, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

type embedder struct {
	provider IProvider
	model    string
	timeout  time.Duration
	parallel int
}

func NewEmbedder(p IProvider, model string, timeout time.Duration, parallel int) IEmbedder {
	if parallel <= 0 {
		parallel = 4
	}
	return &embedder{provider: p, model: model, timeout: timeout, parallel: parallel}
}

func (e *embedder) EmbedOne(ctx context.Context, text string, taskType string) ([]float32, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.provider.Embed(ctx, e.model, text, taskType)
}

// EmbedBatch fans the batch out with bounded concurrency and returns one
// result per input, in input order. Item failures are recorded, not
// propagated, so a partial batch is still usable.
func (e *embedder) EmbedBatch(ctx context.Context, texts []string, taskType string) []EmbedResult {
	results := make([]EmbedResult, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallel)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.EmbedOne(gctx, text, taskType)
			results[i] = EmbedResult{Vector: vec, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *embedder) ModelName() string {
	return e.model
}

type ProviderFactory func(args interface{}) (IProvider, error)

var registry = map[string]ProviderFactory{}

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewProvider(name string, args interface{}) (IProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}
