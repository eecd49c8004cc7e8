// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_signature

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/rapidaai/reception/pkg/commons"
)

// AuthenticationError marks a webhook that failed origin verification.
// Rejected at the boundary; it never creates session state.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("webhook authentication failed: %s", e.Reason)
}

// Verifier checks that an inbound webhook was signed by the carrier.
// The carrier signs the timestamp and the exact raw body joined by "|"
// with a detached Ed25519 signature; both signature and verification key
// travel base64-encoded.
type Verifier struct {
	publicKey ed25519.PublicKey
	logger    commons.Logger
}

// NewVerifier decodes the configured base64 verification key. A missing or
// malformed key is a startup error; verification never silently degrades.
func NewVerifier(publicKeyB64 string, logger commons.Logger) (*Verifier, error) {
	if publicKeyB64 == "" {
		return nil, fmt.Errorf("carrier public key is not configured")
	}
	raw, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return nil, fmt.Errorf("carrier public key is not valid base64: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("carrier public key has length %d, want %d", len(raw), ed25519.PublicKeySize)
	}
	return &Verifier{publicKey: ed25519.PublicKey(raw), logger: logger}, nil
}

// Verify reports whether signatureB64 is a valid detached signature over
// timestamp|rawBody. Fails closed: any missing input is invalid, never
// "skip verification". No side effects.
func (v *Verifier) Verify(signatureB64, timestamp string, rawBody []byte) bool {
	if v == nil || len(v.publicKey) == 0 {
		return false
	}
	if signatureB64 == "" || timestamp == "" || len(rawBody) == 0 {
		return false
	}

	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		v.logger.Debugf("webhook signature is not valid base64: %v", err)
		return false
	}
	if len(signature) != ed25519.SignatureSize {
		return false
	}

	message := make([]byte, 0, len(timestamp)+1+len(rawBody))
	message = append(message, timestamp...)
	message = append(message, '|')
	message = append(message, rawBody...)

	return ed25519.Verify(v.publicKey, message, signature)
}
