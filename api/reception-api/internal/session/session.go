// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	internal_dialogue "github.com/rapidaai/reception/api/reception-api/internal/dialogue"
	internal_type "github.com/rapidaai/reception/api/reception-api/internal/type"
)

// Session status constants. Transitions are monotonic toward a terminal
// status; once terminal the session is immutable and accepts no further
// media or dialogue events.
const (
	StatusRinging      = "ringing"
	StatusAnswering    = "answering"
	StatusStreaming    = "streaming"
	StatusInDialogue   = "in_dialogue"
	StatusTransferring = "transferring"
	StatusCompleted    = "completed"
	StatusFailed       = "failed"
)

// IsTerminalStatus reports whether a status ends the session lifecycle.
func IsTerminalStatus(status string) bool {
	return status == StatusTransferring || status == StatusCompleted || status == StatusFailed
}

// CallSession is one telephone call in progress or concluded. The owning
// session goroutine is the only writer of status and dialogue state; the
// registry and webhook dispatch only read.
type CallSession struct {
	// SessionID is our own correlation identifier, distinct from the
	// carrier-assigned call-control id. Every log line of this call
	// carries it.
	SessionID string

	// CallID is the carrier-assigned call-control identifier.
	CallID       string
	CallerNumber string
	CalleeNumber string
	Direction    internal_type.Direction
	Voice        internal_type.VoiceProfile

	StartedAt time.Time

	// ctx governs every blocking operation of this session. cancel is
	// invoked exactly once when the session reaches a terminal status,
	// so in-flight provider calls wind down cooperatively.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	status  string
	endedAt time.Time

	dialogueState internal_dialogue.State
	slots         internal_dialogue.Slots
	attemptCount  int

	recordingURL string

	// finals carries authoritative transcripts from recognition into the
	// turn loop. Buffered: the recognition callback must never block on a
	// turn still being spoken.
	finals chan string

	// sttReady fires once when the recognition stream reports readiness.
	sttReady  chan struct{}
	readyOnce sync.Once

	// sttRetried marks that the one allowed recognition restart was used.
	sttRetried bool

	// sttGen numbers recognition streams. Callbacks and pumps carry the
	// generation they were started with; anything reporting a stale
	// generation is ignored, so a superseded stream cannot burn the
	// retry budget or steal frames.
	sttGen    int
	sttHandle internal_type.SpeechToTextHandle

	// sttQuit ends the current generation's frame pump without waiting
	// for it to observe a dead handle.
	sttQuit chan struct{}

	// outboundSeq numbers synthesized frames for the media transport.
	outboundSeq uint64

	mediaAttached bool
}

func newCallSession(callID, caller, callee string, voice internal_type.VoiceProfile) *CallSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &CallSession{
		SessionID:     uuid.New().String(),
		CallID:        callID,
		CallerNumber:  caller,
		CalleeNumber:  callee,
		Direction:     internal_type.DirectionInbound,
		Voice:         voice,
		StartedAt:     time.Now(),
		ctx:           ctx,
		cancel:        cancel,
		status:        StatusRinging,
		dialogueState: internal_dialogue.StateGreet,
		slots:         internal_dialogue.Slots{},
		finals:        make(chan string, 8),
		sttReady:      make(chan struct{}),
	}
}

// Status returns the current lifecycle status.
func (s *CallSession) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsTerminal reports whether the session has ended.
func (s *CallSession) IsTerminal() bool {
	return IsTerminalStatus(s.Status())
}

// EndedAt returns when the session reached a terminal status, zero before.
func (s *CallSession) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// DialogueSnapshot returns the current dialogue position for observers.
func (s *CallSession) DialogueSnapshot() (internal_dialogue.State, internal_dialogue.Slots, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialogueState, s.slots.Clone(), s.attemptCount
}

// transition moves the session to status. Returns false without change when
// the session is already terminal; terminal rows are immutable.
func (s *CallSession) transition(status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if IsTerminalStatus(s.status) {
		return false
	}
	s.status = status
	if IsTerminalStatus(status) {
		s.endedAt = time.Now()
	}
	return true
}

func (s *CallSession) applyStep(result *internal_dialogue.StepResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogueState = result.State
	s.slots = result.Slots
	s.attemptCount = result.AttemptCount
}

func (s *CallSession) markReady() {
	s.readyOnce.Do(func() { close(s.sttReady) })
}

func (s *CallSession) nextOutboundSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outboundSeq++
	return s.outboundSeq
}

// pushFinal hands a final transcript to the turn loop. Finals are dialogue
// control inputs, so the recognition callback must still never block on a
// stalled turn; under pressure the oldest final is dropped and the caller
// is told so it can surface the loss.
func (s *CallSession) pushFinal(text string) (dropped bool) {
	select {
	case s.finals <- text:
		return false
	default:
	}
	select {
	case <-s.finals:
		dropped = true
	default:
	}
	select {
	case s.finals <- text:
	default:
		dropped = true
	}
	return dropped
}
