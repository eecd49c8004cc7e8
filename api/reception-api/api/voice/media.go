// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package reception_voice_api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	internal_type "github.com/rapidaai/reception/api/reception-api/internal/type"
)

var mediaUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// mediaMessage is the carrier media-stream envelope: a discriminator plus,
// for media, a sequence number and base64 mu-law payload. Sequence numbers
// arrive as strings on the wire.
type mediaMessage struct {
	Event          string `json:"event"`
	SequenceNumber string `json:"sequence_number,omitempty"`
	Media          *struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
	Start *struct {
		CallControlID string `json:"call_control_id"`
	} `json:"start,omitempty"`
}

// mediaWriter serializes outbound frames onto one websocket connection.
// gorilla allows a single concurrent writer, so writes are mutex-guarded.
type mediaWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *mediaWriter) write(frame internal_type.MediaFrame) error {
	message := mediaMessage{
		Event:          "media",
		SequenceNumber: strconv.FormatUint(frame.SequenceNumber, 10),
		Media: &struct {
			Payload string `json:"payload"`
		}{Payload: base64.StdEncoding.EncodeToString(frame.Payload)},
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, payload)
}

// Media is the per-call duplex media socket. The carrier opens it after the
// streaming_start command; the first message is "start", then "media" frames,
// then "stop".
//
// @Router /v1/voice/media/:callId [get]
func (vApi *VoiceApi) Media(c *gin.Context) {
	callID := c.Param("callId")
	if callID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing call id"})
		return
	}

	conn, err := mediaUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		vApi.logger.Errorf("media socket upgrade failed: call=%s err=%v", callID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to upgrade to websocket"})
		return
	}
	defer conn.Close()

	writer := &mediaWriter{conn: conn}
	attached := false
	defer func() {
		if attached {
			vApi.manager.DetachMedia(callID)
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				vApi.logger.Warnw("media socket read failed", "call", callID, "error", err)
			}
			return
		}

		var message mediaMessage
		if err := json.Unmarshal(payload, &message); err != nil {
			vApi.logger.Debugw("dropping malformed media message", "call", callID, "error", err)
			continue
		}

		switch message.Event {
		case "start":
			if attached {
				continue
			}
			if err := vApi.manager.AttachMedia(callID, writer.write); err != nil {
				vApi.logger.Errorw("media attach rejected", "call", callID, "error", err)
				return
			}
			attached = true

		case "media":
			if !attached || message.Media == nil {
				continue
			}
			audio, err := base64.StdEncoding.DecodeString(message.Media.Payload)
			if err != nil {
				vApi.logger.Debugw("dropping undecodable media payload", "call", callID, "error", err)
				continue
			}
			sequence, err := strconv.ParseUint(message.SequenceNumber, 10, 64)
			if err != nil {
				vApi.logger.Debugw("dropping media frame without sequence", "call", callID)
				continue
			}
			if err := vApi.manager.IngestMedia(callID, internal_type.MediaFrame{
				SequenceNumber: sequence,
				Payload:        audio,
				Timestamp:      time.Now(),
				Direction:      internal_type.DirectionInbound,
			}); err != nil {
				vApi.logger.Debugw("inbound frame rejected", "call", callID, "error", err)
			}

		case "stop":
			return

		default:
			vApi.logger.Debugf("ignoring media event: call=%s event=%s", callID, message.Event)
		}
	}
}
