// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

import (
	"context"
	"time"
)

// RetryPolicy bounds an exponential backoff loop.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy matches the carrier control-plane requirements:
// a handful of attempts, never more than a couple of seconds apart.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:  3,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
}

// Retry invokes fn until it succeeds, the policy is exhausted, or fn reports
// a permanent failure by returning (err, false). The last error is returned.
// Context cancellation aborts the wait between attempts.
func Retry(ctx context.Context, policy RetryPolicy, fn func() (error, bool)) error {
	delay := policy.InitialDelay
	var lastErr error
	for attempt := 1; ; attempt++ {
		err, retryable := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable || attempt >= policy.MaxAttempts {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
}
