// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package llm

import (
	"context"
	"errors"
	"time"

	"promptforge/internal/logging"
)

// RetryConfig bounds the retry schedule applied around a Provider.
type RetryConfig struct {
	Timeout     time.Duration // per-call timeout
	MaxAttempts int           // total attempts including the first
	BaseBackoff time.Duration // doubled after every failed attempt
}

// Retrying wraps a Provider with per-call timeouts and bounded
// exponential-backoff retry. Exhaustion surfaces *ExternalServiceError;
// a collaborator outage is never a crash.
type Retrying struct {
	name    string
	inner   Provider
	cfg     RetryConfig
	logger  logging.Logger
	sleepFn func(context.Context, time.Duration) error
}

// NewRetrying builds the retrying wrapper around inner.
func NewRetrying(name string, inner Provider, cfg RetryConfig, logger logging.Logger) *Retrying {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	return &Retrying{
		name:    name,
		inner:   inner,
		cfg:     cfg,
		logger:  logger,
		sleepFn: sleepCtx,
	}
}

// Generate calls the wrapped provider, retrying transient failures with
// exponential backoff. Context cancellation aborts immediately and is
// returned as-is so the pipeline can report an interrupted run.
func (r *Retrying) Generate(ctx context.Context, req Request) (*Response, error) {
	var last error
	backoff := r.cfg.BaseBackoff

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		resp, err := r.generateOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		last = err
		r.logger.Warnf("provider %s attempt %d/%d failed for stage %s: %v",
			r.name, attempt, r.cfg.MaxAttempts, req.Stage, err)

		if attempt < r.cfg.MaxAttempts {
			if err := r.sleepFn(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
		}
	}

	return nil, &ExternalServiceError{Provider: r.name, Attempts: r.cfg.MaxAttempts, Last: last}
}

func (r *Retrying) generateOnce(ctx context.Context, req Request) (*Response, error) {
	callCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	resp, err := r.inner.Generate(callCtx, req)
	if err != nil {
		// A per-call deadline counts as a transient failure; the parent
		// context staying alive distinguishes it from a user cancel.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, errors.New("call timed out")
		}
		return nil, err
	}
	return resp, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
