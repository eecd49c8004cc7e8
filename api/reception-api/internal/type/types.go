// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

import (
	"time"
)

// Direction distinguishes caller audio from synthesized audio.
type Direction int

const (
	DirectionInbound  Direction = iota // caller -> receptionist
	DirectionOutbound                  // receptionist -> caller
)

func (d Direction) String() string {
	if d == DirectionInbound {
		return "inbound"
	}
	return "outbound"
}

// MediaFrame is one unit of call audio. Sequence numbers increase
// monotonically per direction per session; the transport drops anything
// out of order rather than reordering it.
type MediaFrame struct {
	SequenceNumber uint64
	Payload        []byte
	Timestamp      time.Time
	Direction      Direction
}

// VoiceProfile selects the synthesis voice for one session. Resolved from
// tenant configuration at session start and immutable afterwards.
type VoiceProfile struct {
	Engine  string
	VoiceID string
}
