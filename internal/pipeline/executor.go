// Package pipeline drives the four glossary stages (extract, generate,
// review, refine) against a project database. The executor is stateless per
// run; all per-run state travels in the RunContext.
package pipeline

import (
	"context"
	"fmt"

	"github.com/genglossary/genglossary/internal/llm"
	"github.com/genglossary/genglossary/internal/storage/sqlite"
	"github.com/genglossary/genglossary/internal/types"
)

// DefaultBatchSize bounds classification and review batches so a single LLM
// call stays well inside context windows.
const DefaultBatchSize = 10

// Executor dispatches a run scope to its stage sequence.
type Executor struct {
	llm       llm.Client
	batchSize int
}

// Option adjusts executor construction.
type Option func(*Executor)

// WithBatchSize overrides the classification/review batch size.
func WithBatchSize(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// New builds an executor around an LLM client.
func New(client llm.Client, opts ...Option) *Executor {
	e := &Executor{llm: client, batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the stage sequence for scope on the worker's connection.
// full = generate → review → refine; extraction runs only under its own
// scope. An unknown scope fails before any write.
func (e *Executor) Execute(ctx context.Context, c *sqlite.Conn, rc *RunContext, scope types.RunScope, docRoot string) error {
	switch scope {
	case types.ScopeFull:
		if err := e.runStage(ctx, rc, "generate", func() error {
			return e.generateStage(ctx, c, rc, docRoot)
		}); err != nil {
			return err
		}
		if err := e.runStage(ctx, rc, "review", func() error {
			return e.reviewStage(ctx, c, rc)
		}); err != nil {
			return err
		}
		return e.runStage(ctx, rc, "refine", func() error {
			return e.refineStage(ctx, c, rc)
		})
	case types.ScopeExtract:
		return e.runStage(ctx, rc, "extract", func() error {
			return e.extractStage(ctx, c, rc, docRoot)
		})
	case types.ScopeGenerate:
		return e.runStage(ctx, rc, "generate", func() error {
			return e.generateStage(ctx, c, rc, docRoot)
		})
	case types.ScopeReview:
		return e.runStage(ctx, rc, "review", func() error {
			return e.reviewStage(ctx, c, rc)
		})
	case types.ScopeRefine:
		return e.runStage(ctx, rc, "refine", func() error {
			return e.refineStage(ctx, c, rc)
		})
	default:
		return fmt.Errorf("%w: unknown run scope %q", types.ErrValidation, scope)
	}
}

// runStage is the cancellation gate at every stage boundary.
func (e *Executor) runStage(ctx context.Context, rc *RunContext, name string, fn func() error) error {
	if err := checkCancelled(ctx); err != nil {
		return err
	}
	rc.Info("starting %s stage", name)
	if err := fn(); err != nil {
		return err
	}
	rc.Info("%s stage finished", name)
	return nil
}
