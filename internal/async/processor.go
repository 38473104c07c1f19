package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/bnetlogin/internal/metrics"
	"github.com/BradenHooton/bnetlogin/internal/models"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// ErrProcessorClosed is returned by chains submitted after Shutdown
var ErrProcessorClosed = errors.New("query processor is shut down")

// Chain is a submitted chain. Its result is published exactly once.
type Chain struct {
	ID   string
	Name string

	done  chan struct{}
	value any
	err   error
}

// Wait blocks until the chain completes or ctx is done. A cancelled ctx only stops the
// wait; the chain itself keeps running.
func (c *Chain) Wait(ctx context.Context) (any, error) {
	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Chain) complete(value any, err error) {
	c.value = value
	c.err = err
	close(c.done)
}

// Await waits for the chain and asserts its final value to T
func Await[T any](ctx context.Context, c *Chain) (T, error) {
	var zero T

	value, err := c.Wait(ctx)
	if err != nil {
		return zero, err
	}

	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("chain %s finished with %T, want %T", c.Name, value, zero)
	}
	return typed, nil
}

// Processor executes chains on at most maxChains concurrent workers
type Processor struct {
	sem     *semaphore.Weighted
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewProcessor(maxChains int64, logger *slog.Logger, m *metrics.Metrics) *Processor {
	if maxChains <= 0 {
		maxChains = 1
	}
	return &Processor{
		sem:     semaphore.NewWeighted(maxChains),
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("bnetlogin/async"),
	}
}

// Submit starts a chain and returns immediately. The chain is detached from ctx
// cancellation but keeps its values for tracing.
func (p *Processor) Submit(ctx context.Context, name string, first Step) *Chain {
	chain := &Chain{
		ID:   uuid.NewString(),
		Name: name,
		done: make(chan struct{}),
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		chain.complete(nil, ErrProcessorClosed)
		return chain
	}

	p.wg.Add(1)
	go p.run(context.WithoutCancel(ctx), chain, first)

	return chain
}

func (p *Processor) run(ctx context.Context, chain *Chain, step Step) {
	defer p.wg.Done()

	// Acquire cannot fail on a context that is never cancelled
	_ = p.sem.Acquire(ctx, 1)
	defer p.sem.Release(1)

	p.metrics.ChainStarted(chain.Name)

	value, err := p.execute(ctx, chain, step)

	p.metrics.ChainFinished(chain.Name, err)
	chain.complete(value, err)
}

func (p *Processor) execute(ctx context.Context, chain *Chain, step Step) (any, error) {
	for {
		switch {
		case step.err != nil:
			p.logAbort(chain, step.name, step.err)
			return nil, fmt.Errorf("%w: %w", models.ErrChainAborted, step.err)
		case step.final:
			p.logger.Debug("query chain finished",
				slog.String("chain", chain.Name),
				slog.String("chain_id", chain.ID),
			)
			return step.value, nil
		case step.run == nil:
			err := errors.New("empty step")
			p.logAbort(chain, step.name, err)
			return nil, fmt.Errorf("%w: %w", models.ErrChainAborted, err)
		}

		next, err := p.stage(ctx, chain, step)
		if err != nil {
			p.logAbort(chain, step.name, err)
			return nil, fmt.Errorf("%w: %s: %w", models.ErrChainAborted, step.name, err)
		}
		step = next
	}
}

// stage runs one operation with its continuation inside a span
func (p *Processor) stage(ctx context.Context, chain *Chain, step Step) (next Step, err error) {
	ctx, span := p.tracer.Start(ctx, chain.Name+"."+step.name, trace.WithAttributes(
		attribute.String("chain.id", chain.ID),
		attribute.String("chain.name", chain.Name),
	))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panicked: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		p.metrics.ObserveStage(chain.Name, step.name, time.Since(start))
	}()

	return step.run(ctx)
}

func (p *Processor) logAbort(chain *Chain, stage string, err error) {
	p.logger.Error("query chain aborted",
		slog.String("chain", chain.Name),
		slog.String("chain_id", chain.ID),
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
}

// Shutdown stops accepting chains and waits for the running ones or for ctx
func (p *Processor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("query processor stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("query processor shutdown: %w", ctx.Err())
	}
}
