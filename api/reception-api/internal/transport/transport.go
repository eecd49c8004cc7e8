// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transport

import (
	"fmt"
	"sync"

	internal_type "github.com/rapidaai/reception/api/reception-api/internal/type"
	"github.com/rapidaai/reception/pkg/commons"
)

// DefaultQueueDepth bounds the per-session inbound frame queue. At 20 ms
// frames this is one second of audio; beyond that the oldest frames are
// dropped so a slow recognizer never stalls the carrier-facing socket.
const DefaultQueueDepth = 50

// OutboundWriter delivers one synthesized frame to the carrier-facing
// socket for a session.
type OutboundWriter func(frame internal_type.MediaFrame) error

// Option configures the Transport.
type Option func(*Transport)

// WithQueueDepth overrides the bounded inbound queue depth.
func WithQueueDepth(depth int) Option {
	return func(t *Transport) { t.queueDepth = depth }
}

// Transport ferries audio frames between the carrier-side socket and the
// core, independently per direction, per session. It owns frame ordering
// state only, keyed by session id, and holds no dialogue state.
type Transport struct {
	logger     commons.Logger
	queueDepth int

	mu       sync.RWMutex
	sessions map[string]*sessionTransport
}

type sessionTransport struct {
	inbound chan internal_type.MediaFrame
	writer  OutboundWriter

	mu              sync.Mutex
	lastInboundSeq  uint64
	seenInbound     bool
	lastOutboundSeq uint64
	seenOutbound    bool
	closed          bool
}

func NewTransport(logger commons.Logger, opts ...Option) *Transport {
	t := &Transport{
		logger:     logger,
		queueDepth: DefaultQueueDepth,
		sessions:   make(map[string]*sessionTransport),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open registers transport state for a session and binds the carrier-facing
// outbound writer. Opening an already-open session is an error; one media
// socket owns a session's frames.
func (t *Transport) Open(sessionID string, writer OutboundWriter) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[sessionID]; ok {
		return fmt.Errorf("transport already open for session %s", sessionID)
	}
	t.sessions[sessionID] = &sessionTransport{
		inbound: make(chan internal_type.MediaFrame, t.queueDepth),
		writer:  writer,
	}
	t.logger.Debugf("transport opened: session=%s queueDepth=%d", sessionID, t.queueDepth)
	return nil
}

// InboundFrames returns the ordered inbound frame stream for a session.
// The channel closes when the session transport closes.
func (t *Transport) InboundFrames(sessionID string) (<-chan internal_type.MediaFrame, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return st.inbound, true
}

// Ingest accepts one inbound frame. Frames with a sequence number at or
// below the last accepted one are dropped, not reordered, to bound latency.
// When the downstream consumer lags, the oldest queued frames are dropped
// first; audio tolerates bounded loss, the socket must never block.
func (t *Transport) Ingest(sessionID string, frame internal_type.MediaFrame) error {
	t.mu.RLock()
	st, ok := t.sessions[sessionID]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no transport for session %s", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return fmt.Errorf("transport closed for session %s", sessionID)
	}
	if st.seenInbound && frame.SequenceNumber <= st.lastInboundSeq {
		t.logger.Debugw("dropping out-of-order inbound frame",
			"session", sessionID,
			"sequence", frame.SequenceNumber,
			"lastAccepted", st.lastInboundSeq,
		)
		return nil
	}
	st.lastInboundSeq = frame.SequenceNumber
	st.seenInbound = true

	select {
	case st.inbound <- frame:
	default:
		// Queue full: evict the oldest frame, then queue this one.
		select {
		case dropped := <-st.inbound:
			t.logger.Debugw("inbound queue full, dropping oldest frame",
				"session", sessionID,
				"droppedSequence", dropped.SequenceNumber,
			)
		default:
		}
		select {
		case st.inbound <- frame:
		default:
		}
	}
	return nil
}

// Emit delivers one outbound frame to the carrier-facing socket, in the
// order produced by speech synthesis. Duplicate or regressed sequence
// numbers are dropped.
func (t *Transport) Emit(sessionID string, frame internal_type.MediaFrame) error {
	t.mu.RLock()
	st, ok := t.sessions[sessionID]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no transport for session %s", sessionID)
	}

	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return fmt.Errorf("transport closed for session %s", sessionID)
	}
	if st.seenOutbound && frame.SequenceNumber <= st.lastOutboundSeq {
		st.mu.Unlock()
		t.logger.Debugw("dropping out-of-order outbound frame",
			"session", sessionID,
			"sequence", frame.SequenceNumber,
		)
		return nil
	}
	st.lastOutboundSeq = frame.SequenceNumber
	st.seenOutbound = true
	writer := st.writer
	st.mu.Unlock()

	if writer == nil {
		return fmt.Errorf("no outbound writer for session %s", sessionID)
	}
	return writer(frame)
}

// Close releases transport resources for a session and closes its inbound
// stream. Idempotent.
func (t *Transport) Close(sessionID string) {
	t.mu.Lock()
	st, ok := t.sessions[sessionID]
	if ok {
		delete(t.sessions, sessionID)
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	st.closed = true
	close(st.inbound)
	t.logger.Debugf("transport closed: session=%s", sessionID)
}
