// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package reception_voice_api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_callstore "github.com/rapidaai/reception/api/reception-api/internal/callstore"
	internal_dialogue "github.com/rapidaai/reception/api/reception-api/internal/dialogue"
	internal_session "github.com/rapidaai/reception/api/reception-api/internal/session"
	internal_signature "github.com/rapidaai/reception/api/reception-api/internal/signature"
	internal_transport "github.com/rapidaai/reception/api/reception-api/internal/transport"
	internal_type "github.com/rapidaai/reception/api/reception-api/internal/type"
	"github.com/rapidaai/reception/config"
	"github.com/rapidaai/reception/pkg/commons"
)

// ====================================
// Stub providers
// ====================================

type stubCarrier struct{}

func (stubCarrier) Name() string                                          { return "stub" }
func (stubCarrier) Answer(context.Context, string) error                  { return nil }
func (stubCarrier) StartStream(context.Context, string, string) error     { return nil }
func (stubCarrier) Speak(context.Context, string, []byte) error           { return nil }
func (stubCarrier) Transfer(context.Context, string, string) error        { return nil }
func (stubCarrier) VerifyCallerID(context.Context, string) error          { return nil }

type stubHandle struct {
	mu   sync.Mutex
	sent []internal_type.MediaFrame
}

func (h *stubHandle) Send(frame internal_type.MediaFrame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, frame)
	return nil
}

func (h *stubHandle) Stop() error { return nil }

func (h *stubHandle) frames() []internal_type.MediaFrame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]internal_type.MediaFrame(nil), h.sent...)
}

type stubSTT struct {
	mu     sync.Mutex
	handle *stubHandle
	events internal_type.SpeechEvents
}

func (s *stubSTT) Start(_ context.Context, _ string, events internal_type.SpeechEvents) (internal_type.SpeechToTextHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
	s.handle = &stubHandle{}
	events.OnOpen()
	return s.handle, nil
}

type stubStream struct{ chunks chan []byte }

func (s *stubStream) Chunks() <-chan []byte { return s.chunks }
func (s *stubStream) Err() error            { return nil }

type stubTTS struct{}

func (stubTTS) Synthesize(context.Context, string, internal_type.VoiceProfile) (internal_type.SynthesisStream, error) {
	ch := make(chan []byte, 1)
	ch <- []byte{0x00, 0x00}
	close(ch)
	return &stubStream{chunks: ch}, nil
}

type stubStore struct{}

func (stubStore) Save(context.Context, *internal_callstore.CallRecord) (bool, error) {
	return true, nil
}
func (stubStore) Get(context.Context, string) (*internal_callstore.CallRecord, error) {
	return nil, errors.New("not implemented")
}
func (stubStore) Claim(context.Context, string) (*internal_callstore.CallRecord, error) {
	return nil, errors.New("not implemented")
}
func (stubStore) UpdateStatus(context.Context, string, string) error               { return nil }
func (stubStore) RecordTurn(context.Context, string, internal_callstore.Turn) error { return nil }
func (stubStore) Finish(context.Context, string, string) error                     { return nil }
func (stubStore) UpdateField(context.Context, string, string, string) error        { return nil }

// ====================================
// Harness
// ====================================

type apiHarness struct {
	engine  *gin.Engine
	manager *internal_session.Manager
	stt     *stubSTT
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

func newApiHarness(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, err := commons.NewApplicationLogger()
	require.NoError(t, err)

	public, private, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	verifier, err := internal_signature.NewVerifier(base64.StdEncoding.EncodeToString(public), logger)
	require.NoError(t, err)

	stt := &stubSTT{}
	manager := internal_session.NewManager(
		logger,
		stubCarrier{},
		stt,
		stubTTS{},
		internal_dialogue.NewRulesEngine(internal_dialogue.DefaultPolicies()),
		internal_transport.NewTransport(logger),
		stubStore{},
		// Pin the clock inside business hours so sessions enter dialogue.
		internal_session.WithClock(func() time.Time {
			return time.Date(2026, 8, 25, 10, 0, 0, 0, time.Local)
		}),
	)

	cfg := &config.AppConfig{Name: "reception-api", Version: "test"}
	voiceApi := NewVoiceApi(cfg, logger, verifier, manager)

	engine := gin.New()
	engine.POST("/v1/voice/events", voiceApi.Events)
	engine.GET("/v1/voice/media/:callId", voiceApi.Media)

	return &apiHarness{
		engine:  engine,
		manager: manager,
		stt:     stt,
		public:  public,
		private: private,
	}
}

func (h *apiHarness) signedRequest(t *testing.T, body []byte) *http.Request {
	t.Helper()
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	message := append([]byte(timestamp+"|"), body...)
	signature := ed25519.Sign(h.private, message)

	req := httptest.NewRequest(http.MethodPost, "/v1/voice/events", bytes.NewReader(body))
	req.Header.Set(HeaderSignature, base64.StdEncoding.EncodeToString(signature))
	req.Header.Set(HeaderTimestamp, timestamp)
	return req
}

func initiatedEvent(callID string) []byte {
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"event_type": "call.initiated",
			"payload": map[string]interface{}{
				"call_control_id": callID,
				"from":            "+15550001111",
				"to":              "+15550002222",
			},
		},
	}
	body, _ := json.Marshal(payload)
	return body
}

// ====================================
// Webhook endpoint
// ====================================

func TestEvents_ValidSignatureCreatesSession(t *testing.T) {
	h := newApiHarness(t)

	recorder := httptest.NewRecorder()
	h.engine.ServeHTTP(recorder, h.signedRequest(t, initiatedEvent("call-1")))

	assert.Equal(t, http.StatusOK, recorder.Code)
	require.Eventually(t, func() bool {
		_, ok := h.manager.Get("call-1")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestEvents_InvalidSignatureRejected(t *testing.T) {
	h := newApiHarness(t)

	body := initiatedEvent("call-1")
	signed := h.signedRequest(t, body)

	// Flip one byte of the body after signing.
	tampered := append([]byte(nil), body...)
	tampered[len(tampered)/2] ^= 0x01
	req := httptest.NewRequest(http.MethodPost, "/v1/voice/events", bytes.NewReader(tampered))
	req.Header = signed.Header.Clone()

	recorder := httptest.NewRecorder()
	h.engine.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	_, ok := h.manager.Get("call-1")
	assert.False(t, ok)
}

func TestEvents_MissingSignatureHeadersRejected(t *testing.T) {
	h := newApiHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/voice/events", bytes.NewReader(initiatedEvent("call-1")))
	recorder := httptest.NewRecorder()
	h.engine.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestEvents_EventWithoutCallIDRejected(t *testing.T) {
	h := newApiHarness(t)

	body, _ := json.Marshal(map[string]interface{}{
		"data": map[string]interface{}{"event_type": "call.initiated"},
	})
	recorder := httptest.NewRecorder()
	h.engine.ServeHTTP(recorder, h.signedRequest(t, body))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestEvents_ReplayDoesNotDuplicateSession(t *testing.T) {
	h := newApiHarness(t)
	body := initiatedEvent("call-1")

	for i := 0; i < 2; i++ {
		recorder := httptest.NewRecorder()
		h.engine.ServeHTTP(recorder, h.signedRequest(t, body))
		assert.Equal(t, http.StatusOK, recorder.Code)
	}

	require.Eventually(t, func() bool {
		return h.manager.ActiveCount() == 1
	}, time.Second, 5*time.Millisecond)
}

// ====================================
// Media endpoint
// ====================================

func TestMedia_StreamEnvelopeRoundTrip(t *testing.T) {
	h := newApiHarness(t)

	// Create the session first, as the carrier webhook would.
	recorder := httptest.NewRecorder()
	h.engine.ServeHTTP(recorder, h.signedRequest(t, initiatedEvent("call-1")))
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Eventually(t, func() bool {
		_, ok := h.manager.Get("call-1")
		return ok
	}, time.Second, 5*time.Millisecond)

	server := httptest.NewServer(h.engine)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/voice/media/call-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": "start",
		"start": map[string]interface{}{"call_control_id": "call-1"},
	}))

	audio := base64.StdEncoding.EncodeToString([]byte{0x7F, 0x7F})
	for seq := 1; seq <= 2; seq++ {
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"event":           "media",
			"sequence_number": fmt.Sprintf("%d", seq),
			"media":           map[string]interface{}{"payload": audio},
		}))
	}

	require.Eventually(t, func() bool {
		h.stt.mu.Lock()
		handle := h.stt.handle
		h.stt.mu.Unlock()
		return handle != nil && len(handle.frames()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// The session speaks the greeting; outbound frames come back on the
	// same socket in the media envelope.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var message mediaMessage
	require.NoError(t, conn.ReadJSON(&message))
	assert.Equal(t, "media", message.Event)
	require.NotNil(t, message.Media)
	payload, err := base64.StdEncoding.DecodeString(message.Media.Payload)
	require.NoError(t, err)
	assert.NotEmpty(t, payload)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": "stop"}))
}

func TestMedia_UnknownCallClosesSocket(t *testing.T) {
	h := newApiHarness(t)

	server := httptest.NewServer(h.engine)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/voice/media/no-such-call"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": "start"}))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
