// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"time"

	"github.com/jllopis/skillbind/pkg/errors"
)

// WithTimeout runs fn with a context bounded by d. A zero d runs fn with
// ctx unchanged. When the deadline passes first, a recoverable TIMEOUT is
// returned and fn's late result is discarded.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case <-ctx.Done():
	case res := <-done:
		// fn may return ctx.Err() itself once the deadline passes.
		if res.err == nil || ctx.Err() == nil {
			return res.value, res.err
		}
	}
	var zero T
	if ctx.Err() == context.Canceled {
		return zero, errors.New(errors.CodeContextLost, "operation canceled", ctx.Err())
	}
	return zero, errors.New(errors.CodeTimeout, "operation exceeded timeout", ctx.Err()).
		WithContext("timeout", d.String()).
		WithRecoverable(true)
}
