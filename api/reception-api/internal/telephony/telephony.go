// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_telephony

import (
	"context"
	"fmt"
)

// Carrier is the control-plane contract against the telephony provider.
// Every operation is scoped to one call-control id and is safe to retry;
// the session manager applies bounded backoff around the retryable ones.
type Carrier interface {
	Name() string

	// Answer picks up a ringing call.
	Answer(ctx context.Context, callID string) error

	// StartStream asks the carrier to open its duplex media socket against
	// mediaEndpoint for this call.
	StartStream(ctx context.Context, callID, mediaEndpoint string) error

	// Speak plays a prerendered audio payload on the call. Only used on the
	// non-streamed fallback path.
	Speak(ctx context.Context, callID string, audio []byte) error

	// Transfer hands the call to a human at destination.
	Transfer(ctx context.Context, callID, destination string) error

	// VerifyCallerID submits number for carrier-side caller-id verification.
	VerifyCallerID(ctx context.Context, number string) error
}

// CarrierError is a failed control-plane call. Retryable distinguishes
// transient transport and server conditions from definitive rejections.
type CarrierError struct {
	Operation  string
	CallID     string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *CarrierError) Error() string {
	return fmt.Sprintf("carrier %s failed for call %s (status=%d retryable=%v): %v",
		e.Operation, e.CallID, e.StatusCode, e.Retryable, e.Err)
}

func (e *CarrierError) Unwrap() error { return e.Err }
