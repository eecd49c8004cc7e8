// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

import (
	"context"
	"log"
	"runtime/debug"
)

// Go runs fn on its own goroutine with panic containment. A panicking
// background task must never take down the process with live calls on it.
func Go(ctx context.Context, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("recovered panic in background task: %v\n%s", r, debug.Stack())
			}
		}()
		if ctx.Err() != nil {
			return
		}
		fn()
	}()
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
