// Package settle runs independent tasks concurrently and collects every
// outcome. A failing task never cancels or affects its siblings.
package settle

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Result is the tagged outcome of one task.
type Result[T any] struct {
	Value T
	Err   error
}

// All calls fn once per input, concurrently, and returns the results in input
// order. limit bounds the number of tasks in flight; zero or less is unbounded.
// A panicking task is reported as that task's error.
func All[In, Out any](ctx context.Context, limit int, inputs []In, fn func(context.Context, In) (Out, error)) []Result[Out] {
	results := make([]Result[Out], len(inputs))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, in := range inputs {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					results[i] = Result[Out]{Err: fmt.Errorf("task panicked: %v", r)}
				}
			}()
			v, err := fn(ctx, in)
			results[i] = Result[Out]{Value: v, Err: err}
			// Errors are carried in results; returning them would only
			// surface the first one from Wait.
			return nil
		})
	}
	_ = g.Wait()

	return results
}
