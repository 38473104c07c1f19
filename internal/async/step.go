// Package async runs ordered chains of data-store operations off the request goroutine.
//
// A chain is built from steps. Query runs one operation and hands its result to a
// continuation that returns the next step; Finish ends the chain with the response value;
// Fail aborts it. Stages of one chain never overlap.
package async

import (
	"context"
	"errors"
)

// Step is one unit of a chain: an operation with its continuation, a final value or an abort
type Step struct {
	name  string
	run   func(ctx context.Context) (Step, error)
	final bool
	value any
	err   error
}

// Query builds a stage that runs op and passes its result to next
func Query[T any](name string, op func(ctx context.Context) (T, error), next func(ctx context.Context, result T) Step) Step {
	return Step{
		name: name,
		run: func(ctx context.Context) (Step, error) {
			result, err := op(ctx)
			if err != nil {
				return Step{}, err
			}
			return next(ctx, result), nil
		},
	}
}

// Exec builds a stage for an operation without a result
func Exec(name string, op func(ctx context.Context) error, next func(ctx context.Context) Step) Step {
	return Query(name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, func(ctx context.Context, _ struct{}) Step {
		return next(ctx)
	})
}

// Finish ends a chain with value as its response
func Finish(value any) Step {
	return Step{name: "finish", final: true, value: value}
}

// Fail aborts a chain with err
func Fail(err error) Step {
	if err == nil {
		err = errors.New("chain failed without an error")
	}
	return Step{name: "fail", err: err}
}

