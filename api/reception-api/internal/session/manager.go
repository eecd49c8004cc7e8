// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	internal_callstore "github.com/rapidaai/reception/api/reception-api/internal/callstore"
	internal_dialogue "github.com/rapidaai/reception/api/reception-api/internal/dialogue"
	internal_normalizers "github.com/rapidaai/reception/api/reception-api/internal/normalizers"
	internal_telephony "github.com/rapidaai/reception/api/reception-api/internal/telephony"
	internal_transport "github.com/rapidaai/reception/api/reception-api/internal/transport"
	internal_type "github.com/rapidaai/reception/api/reception-api/internal/type"
	"github.com/rapidaai/reception/pkg/commons"
	"github.com/rapidaai/reception/pkg/utils"
)

// Webhook lifecycle event types dispatched into the manager.
const (
	EventCallInitiated  = "call.initiated"
	EventCallAnswered   = "call.answered"
	EventCallHangup     = "call.hangup"
	EventRecordingSaved = "call.recording.saved"
)

// Event is one decoded, signature-verified carrier lifecycle event.
type Event struct {
	Type         string
	CallID       string
	CallerNumber string
	CalleeNumber string
	RecordingURL string
}

// Option configures the Manager.
type Option func(*Manager)

// WithVoiceProfile sets the synthesis voice used for every session.
func WithVoiceProfile(voice internal_type.VoiceProfile) Option {
	return func(m *Manager) { m.voice = voice }
}

// WithTransferDestination sets the human hand-off number.
func WithTransferDestination(destination string) Option {
	return func(m *Manager) { m.transferDestination = destination }
}

// WithRetention overrides how long a terminal session stays in the registry.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) { m.retention = d }
}

// WithRetryPolicy overrides the carrier control-plane backoff policy.
func WithRetryPolicy(policy utils.RetryPolicy) Option {
	return func(m *Manager) { m.retry = policy }
}

// WithReadyTimeout bounds the wait for the media socket and recognition
// stream to come up after streaming starts.
func WithReadyTimeout(d time.Duration) Option {
	return func(m *Manager) { m.readyTimeout = d }
}

// WithPolicies overrides the receptionist script table.
func WithPolicies(policies internal_dialogue.Policies) Option {
	return func(m *Manager) { m.policies = policies }
}

// WithClock overrides the wall clock. Tests use this to pin the
// business-hours decision.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithApologyAudio sets the prerendered mu-law asset played when synthesis
// fails mid-call.
func WithApologyAudio(audio []byte) Option {
	return func(m *Manager) { m.apology = audio }
}

// WithMediaEndpoint overrides how the per-call media socket URL is built.
func WithMediaEndpoint(build func(callID string) string) Option {
	return func(m *Manager) { m.mediaEndpoint = build }
}

// WithNormalizers overrides the synthesis text normalizer pipeline.
func WithNormalizers(normalizers []internal_normalizers.Normalizer) Option {
	return func(m *Manager) { m.normalizers = normalizers }
}

// Manager owns every live CallSession. One goroutine per call sequences the
// lifecycle; the registry supports concurrent insert and lookup but only the
// owning goroutine mutates a session.
type Manager struct {
	logger    commons.Logger
	carrier   internal_telephony.Carrier
	stt       internal_type.SpeechToText
	tts       internal_type.TextToSpeech
	engine    internal_dialogue.Engine
	transport *internal_transport.Transport
	store     internal_callstore.Store

	policies            internal_dialogue.Policies
	voice               internal_type.VoiceProfile
	transferDestination string
	mediaEndpoint       func(callID string) string
	retention           time.Duration
	retry               utils.RetryPolicy
	readyTimeout        time.Duration
	now                 func() time.Time
	apology             []byte
	normalizers         []internal_normalizers.Normalizer

	mu       sync.RWMutex
	sessions map[string]*CallSession
}

func NewManager(
	logger commons.Logger,
	carrier internal_telephony.Carrier,
	stt internal_type.SpeechToText,
	tts internal_type.TextToSpeech,
	engine internal_dialogue.Engine,
	transport *internal_transport.Transport,
	store internal_callstore.Store,
	opts ...Option,
) *Manager {
	m := &Manager{
		logger:        logger,
		carrier:       carrier,
		stt:           stt,
		tts:           tts,
		engine:        engine,
		transport:     transport,
		store:         store,
		policies:      internal_dialogue.DefaultPolicies(),
		retention:     5 * time.Minute,
		retry:         utils.DefaultRetryPolicy,
		readyTimeout:  30 * time.Second,
		now:           time.Now,
		mediaEndpoint: func(callID string) string { return "/v1/voice/media/" + callID },
		normalizers:   internal_normalizers.ForSpeech(logger),
		sessions:      make(map[string]*CallSession),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the live session for a call-control id.
func (m *Manager) Get(callID string) (*CallSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[callID]
	return s, ok
}

// ActiveCount returns the number of sessions still in the registry.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Dispatch routes one verified lifecycle event. Replayed deliveries and
// events for terminal sessions are acknowledged and discarded.
func (m *Manager) Dispatch(event Event) error {
	if event.CallID == "" {
		return errors.New("lifecycle event without call id")
	}

	switch event.Type {
	case EventCallInitiated:
		m.startCall(event)
		return nil
	case EventCallAnswered:
		// Acknowledgment of our own answer command.
		m.logger.Debugf("call answered: call=%s", event.CallID)
		return nil
	case EventCallHangup:
		m.endCall(event.CallID, StatusCompleted)
		return nil
	case EventRecordingSaved:
		m.attachRecording(event.CallID, event.RecordingURL)
		return nil
	default:
		m.logger.Debugf("ignoring lifecycle event: type=%s call=%s", event.Type, event.CallID)
		return nil
	}
}

// startCall creates the session for a new call-control id and launches its
// owning goroutine. A second delivery of the same event finds the existing
// session and does nothing: exactly one CallSession per call-control id.
func (m *Manager) startCall(event Event) {
	m.mu.Lock()
	if _, ok := m.sessions[event.CallID]; ok {
		m.mu.Unlock()
		m.logger.Debugf("webhook replay for live session: call=%s", event.CallID)
		return
	}
	s := newCallSession(event.CallID, event.CallerNumber, event.CalleeNumber, m.voice)
	m.sessions[event.CallID] = s
	m.mu.Unlock()

	m.logger.Infof("session created: session=%s call=%s caller=%s callee=%s",
		s.SessionID, event.CallID, event.CallerNumber, event.CalleeNumber)

	utils.Go(s.ctx, func() { m.run(s) })
}

// run sequences one call from ringing to a terminal status.
func (m *Manager) run(s *CallSession) {
	m.persistCreate(s)

	if !s.transition(StatusAnswering) {
		return
	}
	m.persistStatus(s, internal_callstore.StatusAnswering)

	if err := m.carrierRetry(s, "answer", func(ctx context.Context) error {
		return m.carrier.Answer(ctx, s.CallID)
	}); err != nil {
		m.logger.Errorw("answer failed after retries", "call", s.CallID, "error", err)
		m.finish(s, StatusFailed)
		return
	}

	if !s.transition(StatusStreaming) {
		return
	}
	m.persistStatus(s, internal_callstore.StatusStreaming)

	if err := m.carrierRetry(s, "start_stream", func(ctx context.Context) error {
		return m.carrier.StartStream(ctx, s.CallID, m.mediaEndpoint(s.CallID))
	}); err != nil {
		m.logger.Errorw("start stream failed after retries", "call", s.CallID, "error", err)
		m.finish(s, StatusFailed)
		return
	}

	// Wait for the media socket and recognition stream to come up.
	select {
	case <-s.sttReady:
	case <-time.After(m.readyTimeout):
		m.logger.Errorw("media stream never became ready", "call", s.CallID)
		m.finish(s, StatusFailed)
		return
	case <-s.ctx.Done():
		return
	}

	if !s.transition(StatusInDialogue) {
		return
	}
	m.persistStatus(s, internal_callstore.StatusInDialogue)

	if !utils.IsBusinessHours(m.now()) {
		m.speak(s, m.policies.BusinessHoursMessage+" "+m.policies.VoicemailPrompt)
		m.finish(s, StatusCompleted)
		return
	}

	// Bootstrap turn: the greet state advances on any input and yields the
	// greeting, so the receptionist speaks first.
	m.turn(s, "")

	for {
		select {
		case transcript := <-s.finals:
			if done := m.turn(s, transcript); done {
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// turn runs one dialogue exchange. Turns are strictly sequential: the next
// final transcript is not read until this utterance has been dispatched.
func (m *Manager) turn(s *CallSession, transcript string) bool {
	state, slots, attempts := s.DialogueSnapshot()

	result, err := m.engine.Step(s.ctx, internal_dialogue.StepInput{
		State:        state,
		Slots:        slots,
		AttemptCount: attempts,
		Transcript:   transcript,
	})
	if err != nil {
		m.logger.Errorw("dialogue step failed", "call", s.CallID, "error", err)
		m.finish(s, StatusFailed)
		return true
	}

	s.applyStep(result)
	m.persistTurn(s, transcript, result)

	if result.Escalate {
		m.speak(s, result.Utterance)
		m.escalate(s)
		return true
	}

	m.speak(s, result.Utterance)

	if result.Done {
		m.finish(s, StatusCompleted)
		return true
	}
	return false
}

// escalate hands the call to a human. Transfer failure has no safe automated
// fallback, so exhausted retries end the session as failed.
func (m *Manager) escalate(s *CallSession) {
	m.persistStatus(s, internal_callstore.StatusTransferring)
	if err := m.carrierRetry(s, "transfer", func(ctx context.Context) error {
		return m.carrier.Transfer(ctx, s.CallID, m.transferDestination)
	}); err != nil {
		m.logger.Errorw("transfer failed after retries", "call", s.CallID, "error", err)
		m.finish(s, StatusFailed)
		return
	}

	m.persistField(s, "transfer_target", m.transferDestination)
	m.finish(s, StatusTransferring)
}

// speak synthesizes text and streams it out through the media transport.
// A synthesis failure plays the prerendered apology asset instead of
// leaving the caller in silence.
func (m *Manager) speak(s *CallSession, text string) {
	if text == "" {
		return
	}
	text = internal_normalizers.Apply(m.normalizers, text)

	stream, err := m.tts.Synthesize(s.ctx, text, s.Voice)
	if err != nil {
		m.logger.Errorw("synthesis failed", "call", s.CallID, "error", err)
		m.emitAudio(s, m.apology)
		return
	}

	// Adapters yield carrier-native 8 kHz µ-law chunks.
	for chunk := range stream.Chunks() {
		m.emitAudio(s, chunk)
	}
	if err := stream.Err(); err != nil {
		m.logger.Errorw("synthesis stream died", "call", s.CallID, "error", err)
		m.emitAudio(s, m.apology)
	}
}

func (m *Manager) emitAudio(s *CallSession, mulaw []byte) {
	if len(mulaw) == 0 {
		return
	}
	frame := internal_type.MediaFrame{
		SequenceNumber: s.nextOutboundSeq(),
		Payload:        mulaw,
		Timestamp:      m.now(),
		Direction:      internal_type.DirectionOutbound,
	}
	if err := m.transport.Emit(s.CallID, frame); err != nil {
		m.logger.Debugw("outbound frame dropped", "call", s.CallID, "error", err)
	}
}

// AttachMedia binds the carrier's media socket to a session and starts the
// recognition stream. Called by the media endpoint when the socket connects.
func (m *Manager) AttachMedia(callID string, writer internal_transport.OutboundWriter) error {
	s, ok := m.Get(callID)
	if !ok {
		return fmt.Errorf("no session for call %s", callID)
	}
	if s.IsTerminal() {
		return fmt.Errorf("session for call %s already ended", callID)
	}

	s.mu.Lock()
	if s.mediaAttached {
		s.mu.Unlock()
		return fmt.Errorf("media already attached for call %s", callID)
	}
	s.mediaAttached = true
	s.mu.Unlock()

	if err := m.transport.Open(callID, writer); err != nil {
		return err
	}

	handle, gen, err := m.startRecognition(s)
	if err != nil {
		m.transport.Close(callID)
		return err
	}

	s.mu.Lock()
	quit := s.sttQuit
	s.mu.Unlock()
	frames, _ := m.transport.InboundFrames(callID)
	utils.Go(s.ctx, func() { m.pumpInbound(s, handle, gen, quit, frames) })
	return nil
}

// IngestMedia forwards one inbound frame from the media socket.
func (m *Manager) IngestMedia(callID string, frame internal_type.MediaFrame) error {
	s, ok := m.Get(callID)
	if !ok {
		return fmt.Errorf("no session for call %s", callID)
	}
	if s.IsTerminal() {
		return fmt.Errorf("session for call %s already ended", callID)
	}
	return m.transport.Ingest(callID, frame)
}

// DetachMedia releases the media socket binding, typically on the carrier's
// stop message or socket close. The attachment slot is freed so a carrier
// reconnect mid-call can attach a fresh socket.
func (m *Manager) DetachMedia(callID string) {
	m.transport.Close(callID)
	s, ok := m.Get(callID)
	if !ok {
		return
	}
	s.mu.Lock()
	s.mediaAttached = false
	s.mu.Unlock()
}

// startRecognition opens the speech-to-text stream. Each stream carries a
// generation number; callbacks from a superseded stream are discarded. On a
// mid-call stream error the session retries once with a fresh stream; a
// second failure takes the escalation path.
func (m *Manager) startRecognition(s *CallSession) (internal_type.SpeechToTextHandle, int, error) {
	s.mu.Lock()
	s.sttGen++
	gen := s.sttGen
	s.mu.Unlock()

	events := internal_type.SpeechEvents{
		OnOpen: func() { s.markReady() },
		OnPartial: func(text string) {
			// Advisory only. Partials never advance dialogue.
			m.logger.Debugf("partial transcript: call=%s text=%q", s.CallID, text)
		},
		OnFinal: func(text string) {
			if s.pushFinal(text) {
				m.logger.Warnw("final transcript dropped under backpressure", "call", s.CallID, "text", text)
			}
		},
		OnError: func(err error) { m.recognitionFailed(s, gen, err) },
	}
	handle, err := m.stt.Start(s.ctx, s.CallID, events)
	if err != nil {
		return nil, gen, err
	}

	s.mu.Lock()
	s.sttHandle = handle
	s.sttQuit = make(chan struct{})
	s.mu.Unlock()
	return handle, gen, nil
}

// recognitionFailed handles a persistent recognition stream error: one
// restart, then escalation to a human. gen identifies the stream that
// reported the failure; a stale generation means the stream was already
// replaced and the report is ignored.
func (m *Manager) recognitionFailed(s *CallSession, gen int, err error) {
	if s.IsTerminal() {
		return
	}

	s.mu.Lock()
	if gen != s.sttGen {
		s.mu.Unlock()
		return
	}
	// Invalidate the failed generation immediately: late callbacks and the
	// old pump's final Send error must not re-enter this path.
	s.sttGen++
	retried := s.sttRetried
	s.sttRetried = true
	stale := s.sttHandle
	s.sttHandle = nil
	quit := s.sttQuit
	s.sttQuit = nil
	s.mu.Unlock()

	if quit != nil {
		close(quit)
	}
	m.logger.Warnw("recognition stream error", "call", s.CallID, "error", err)

	if retried {
		m.logger.Errorw("recognition failed after retry, escalating", "call", s.CallID)
		utils.Go(s.ctx, func() {
			m.speak(s, m.policies.HandoffLine)
			m.escalate(s)
		})
		return
	}

	utils.Go(s.ctx, func() {
		// Stop the dead stream first; its pump exits on the closed handle
		// before the replacement starts consuming frames.
		if stale != nil {
			if stopErr := stale.Stop(); stopErr != nil {
				m.logger.Debugw("recognition stop", "call", s.CallID, "error", stopErr)
			}
		}
		handle, nextGen, startErr := m.startRecognition(s)
		if startErr != nil {
			m.recognitionFailed(s, nextGen, startErr)
			return
		}
		s.mu.Lock()
		nextQuit := s.sttQuit
		s.mu.Unlock()
		frames, ok := m.transport.InboundFrames(s.CallID)
		if !ok {
			return
		}
		m.pumpInbound(s, handle, nextGen, nextQuit, frames)
	})
}

// pumpInbound feeds ordered inbound frames into the recognition stream until
// the transport closes, the stream is superseded, or the session ends.
func (m *Manager) pumpInbound(s *CallSession, handle internal_type.SpeechToTextHandle, gen int, quit <-chan struct{}, frames <-chan internal_type.MediaFrame) {
	defer func() {
		if err := handle.Stop(); err != nil {
			m.logger.Debugw("recognition stop", "call", s.CallID, "error", err)
		}
	}()

	for {
		select {
		case <-quit:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := handle.Send(frame); err != nil {
				m.recognitionFailed(s, gen, err)
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// endCall moves a session to a terminal status on an external event.
func (m *Manager) endCall(callID, status string) {
	s, ok := m.Get(callID)
	if !ok {
		m.logger.Debugf("hangup for unknown call: %s", callID)
		return
	}
	m.finish(s, status)
}

func (m *Manager) attachRecording(callID, url string) {
	s, ok := m.Get(callID)
	if !ok || url == "" {
		return
	}
	s.mu.Lock()
	s.recordingURL = url
	s.mu.Unlock()
	m.persistField(s, "recording_url", url)
}

// finish drives the session terminal: status transition, cooperative
// cancellation of in-flight provider work, transport release, durable
// record, and delayed registry eviction.
func (m *Manager) finish(s *CallSession, status string) {
	if !s.transition(status) {
		return
	}
	m.logger.Infof("session ended: session=%s call=%s status=%s duration=%s",
		s.SessionID, s.CallID, status, utils.FormatDuration(time.Since(s.StartedAt)))

	s.cancel()
	m.transport.Close(s.CallID)
	m.persistFinish(s, status)

	time.AfterFunc(m.retention, func() { m.evict(s.CallID) })
}

// Shutdown ends every live session concurrently. Used on process drain:
// callers in progress are handed to a human rather than dropped mid-word,
// so each live call is transferred before its record is finalized.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	live := make([]*CallSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.RUnlock()

	g, _ := errgroup.WithContext(ctx)
	for _, s := range live {
		s := s
		g.Go(func() error {
			if s.IsTerminal() {
				return nil
			}
			m.speak(s, m.policies.HandoffLine)
			m.escalate(s)
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) evict(callID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, callID)
	m.logger.Debugf("session evicted: call=%s", callID)
}

// carrierRetry applies bounded exponential backoff to one control-plane
// operation, retrying only while the carrier reports the failure transient.
func (m *Manager) carrierRetry(s *CallSession, operation string, fn func(ctx context.Context) error) error {
	return utils.Retry(s.ctx, m.retry, func() (error, bool) {
		err := fn(s.ctx)
		if err == nil {
			return nil, false
		}
		var carrierErr *internal_telephony.CarrierError
		if errors.As(err, &carrierErr) {
			return err, carrierErr.Retryable
		}
		m.logger.Warnw("carrier operation failed", "call", s.CallID, "operation", operation, "error", err)
		return err, false
	})
}

// ====================================
// Persistence (fire-and-forget)
// ====================================

// Store writes are advisory: a persistence failure is logged and never
// blocks or fails the live call.

func (m *Manager) persistCreate(s *CallSession) {
	utils.Go(context.Background(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := m.store.Save(ctx, &internal_callstore.CallRecord{
			CallID:       s.CallID,
			Carrier:      m.carrier.Name(),
			Direction:    strings.ToLower(s.Direction.String()),
			CallerNumber: s.CallerNumber,
			CalleeNumber: s.CalleeNumber,
		})
		if err != nil {
			m.logger.Warnw("call record save failed", "call", s.CallID, "error", err)
		}
	})
}

func (m *Manager) persistStatus(s *CallSession, status string) {
	utils.Go(context.Background(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.store.UpdateStatus(ctx, s.CallID, status); err != nil {
			m.logger.Warnw("call record status update failed", "call", s.CallID, "error", err)
		}
	})
}

func (m *Manager) persistTurn(s *CallSession, transcript string, result *internal_dialogue.StepResult) {
	slotsJSON, err := json.Marshal(result.Slots)
	if err != nil {
		slotsJSON = []byte("{}")
	}
	utils.Go(context.Background(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.store.RecordTurn(ctx, s.CallID, internal_callstore.Turn{
			CallerLine:    transcript,
			ResponseLine:  result.Utterance,
			DialogueState: string(result.State),
			SlotsJSON:     string(slotsJSON),
		}); err != nil {
			m.logger.Warnw("transcript write failed", "call", s.CallID, "error", err)
		}
	})
}

func (m *Manager) persistField(s *CallSession, field, value string) {
	utils.Go(context.Background(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.store.UpdateField(ctx, s.CallID, field, value); err != nil {
			m.logger.Warnw("call record field update failed", "call", s.CallID, "error", err)
		}
	})
}

func (m *Manager) persistFinish(s *CallSession, status string) {
	terminal := internal_callstore.StatusCompleted
	if status == StatusFailed {
		terminal = internal_callstore.StatusFailed
	}
	if status == StatusTransferring {
		// A transferred call is a successful hand-off, recorded completed.
		terminal = internal_callstore.StatusCompleted
	}
	utils.Go(context.Background(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.store.Finish(ctx, s.CallID, terminal); err != nil {
			m.logger.Warnw("call record finish failed", "call", s.CallID, "error", err)
		}
	})
}
