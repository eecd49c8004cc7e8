// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_callstore

import (
	"time"

	"gorm.io/gorm"
)

// Call record status constants. They mirror the live session lifecycle so
// the row is a durable shadow of the in-memory state machine.
const (
	StatusRinging      = "ringing"      // Webhook received, call not yet answered
	StatusAnswering    = "answering"    // Answer command issued to the carrier
	StatusStreaming    = "streaming"    // Media stream requested, waiting for audio
	StatusInDialogue   = "in_dialogue"  // Turn loop running
	StatusTransferring = "transferring" // Escalated, transfer command issued
	StatusCompleted    = "completed"    // Call ended normally
	StatusFailed       = "failed"       // Setup or execution failed
)

// CallRecord is the durable shadow of one phone call. Carrier status
// callbacks arrive asynchronously, including after hangup, so the row is
// only ever transitioned through statuses and never deleted mid-call.
//
// Stored in Postgres (call_records table). The status column gives atomic
// claiming: only one webhook delivery can transition ringing→answering,
// which is what makes carrier webhook retries idempotent at the store.
type CallRecord struct {
	Id     uint64 `json:"id" gorm:"primaryKey;autoIncrement;<-:create"`
	CallID string `json:"callId" gorm:"column:call_id;type:varchar(128);not null;uniqueIndex"`
	Status string `json:"status" gorm:"column:status;type:varchar(20);not null;default:ringing"`

	Carrier      string `json:"carrier" gorm:"column:carrier;type:varchar(50);not null;default:''"`
	Direction    string `json:"direction" gorm:"column:direction;type:varchar(20);not null;default:''"`
	CallerNumber string `json:"callerNumber" gorm:"column:caller_number;type:varchar(50);not null;default:''"`
	CalleeNumber string `json:"calleeNumber" gorm:"column:callee_number;type:varchar(50);not null;default:''"`

	// DialogueState is the last dialogue state the turn loop reached,
	// recorded for post-call review alongside the collected slots.
	DialogueState string `json:"dialogueState" gorm:"column:dialogue_state;type:varchar(40);not null;default:''"`
	Slots         string `json:"slots" gorm:"column:slots;type:text;not null;default:''"`
	Transcript    string `json:"transcript" gorm:"column:transcript;type:text;not null;default:''"`

	// TransferTarget is set when the call escalates to a human.
	TransferTarget string `json:"transferTarget" gorm:"column:transfer_target;type:varchar(50);not null;default:''"`

	// RecordingURL references carrier-hosted call audio when recording
	// callbacks deliver one.
	RecordingURL string `json:"recordingUrl" gorm:"column:recording_url;type:text;not null;default:''"`

	CreatedDate time.Time `json:"createdDate" gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;<-:create"`
	UpdatedDate time.Time `json:"updatedDate" gorm:"type:timestamp;default:null"`
	EndedDate   time.Time `json:"endedDate" gorm:"type:timestamp;default:null"`
}

func (CallRecord) TableName() string {
	return "call_records"
}

func (cr *CallRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if cr.CreatedDate.IsZero() {
		cr.CreatedDate = time.Now()
	}
	return nil
}

// IsTerminal returns true once the record can no longer change status.
func (cr *CallRecord) IsTerminal() bool {
	return cr.Status == StatusCompleted || cr.Status == StatusFailed
}
