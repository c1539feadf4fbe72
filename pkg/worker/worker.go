package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/review-automation/pkg/logger"
)

// DefaultConcurrency is the pool size used when none is configured.
const DefaultConcurrency = 4

type Config struct {
	Concurrency int
}

// Handler processes one named job and reports its result.
type Handler[T any] func(ctx context.Context, name string) T

// PanicHandler turns a recovered panic into a result.
type PanicHandler[T any] func(name string, err error) T

// Pool runs jobs on a fixed number of goroutines. Each goroutine runs one
// job to completion before taking the next.
type Pool[T any] struct {
	concurrency int
	handler     Handler[T]
	onPanic     PanicHandler[T]
	logger      logger.Logger
}

func NewPool[T any](cfg *Config, handler Handler[T], onPanic PanicHandler[T], log logger.Logger) *Pool[T] {
	n := DefaultConcurrency
	if cfg != nil && cfg.Concurrency > 0 {
		n = cfg.Concurrency
	}
	return &Pool[T]{
		concurrency: n,
		handler:     handler,
		onPanic:     onPanic,
		logger:      log,
	}
}

func (p *Pool[T]) Concurrency() int {
	return p.concurrency
}

// Run submits every name and returns a channel that yields results in
// completion order. The channel is closed once all submitted jobs finished.
// Once ctx is done no further names are submitted.
func (p *Pool[T]) Run(ctx context.Context, names []string) <-chan T {
	results := make(chan T, len(names))

	go func() {
		defer close(results)

		var g errgroup.Group
		g.SetLimit(p.concurrency)
		for _, name := range names {
			if ctx.Err() != nil {
				p.logger.Warn("Pool stopped submitting jobs", logger.String("next", name))
				break
			}
			name := name // per-iteration copy; go.mod targets go1.21 loop semantics
			g.Go(func() error {
				results <- p.call(ctx, name)
				return nil
			})
		}
		_ = g.Wait()
	}()

	return results
}

func (p *Pool[T]) call(ctx context.Context, name string) (res T) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("job panicked: %v", r)
			p.logger.Error("Job failed with panic", logger.String("name", name), logger.Error(err))
			if p.onPanic != nil {
				res = p.onPanic(name, err)
			}
		}
	}()
	return p.handler(ctx, name)
}
