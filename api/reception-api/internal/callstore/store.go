// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_callstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rapidaai/reception/pkg/commons"
	"github.com/rapidaai/reception/pkg/connectors"
)

// Store provides operations to save and retrieve call records from Postgres.
//
// Records are shadow state: the live session in memory is authoritative while
// the call runs, and store writes are advisory. A failed write is logged and
// never fails the call it describes.
type Store interface {
	// Save inserts the record for a new call. Re-delivery of the same
	// carrier webhook hits the call_id unique index; the existing row is
	// returned with created=false so the caller can treat it as a replay.
	Save(ctx context.Context, cr *CallRecord) (created bool, err error)

	// Get retrieves a call record by carrier call id regardless of status.
	// Carrier callbacks are asynchronous and may arrive after hangup, so
	// terminal rows stay readable.
	Get(ctx context.Context, callID string) (*CallRecord, error)

	// Claim atomically transitions a record from "ringing" to "answering".
	// Only one concurrent webhook delivery wins; losers get an error
	// because the row is no longer claimable.
	Claim(ctx context.Context, callID string) (*CallRecord, error)

	// UpdateStatus moves a record to the given lifecycle status. Terminal
	// rows are left untouched so a late streaming callback cannot revive
	// a completed call.
	UpdateStatus(ctx context.Context, callID, status string) error

	// RecordTurn appends one dialogue turn (caller line plus response) to
	// the transcript and updates the dialogue state and slot snapshot.
	RecordTurn(ctx context.Context, callID string, turn Turn) error

	// Finish marks a record completed or failed and stamps the end time.
	Finish(ctx context.Context, callID, status string) error

	// UpdateField sets a single column on an existing record. Used to
	// patch the transfer target or recording URL after carrier callbacks.
	UpdateField(ctx context.Context, callID, field, value string) error
}

// Turn is one exchange of the dialogue loop as persisted to the transcript.
type Turn struct {
	CallerLine    string
	ResponseLine  string
	DialogueState string
	SlotsJSON     string
}

type postgresStore struct {
	postgres connectors.PostgresConnector
	logger   commons.Logger
}

// NewStore creates a call record store backed by Postgres.
func NewStore(postgres connectors.PostgresConnector, logger commons.Logger) Store {
	return &postgresStore{
		postgres: postgres,
		logger:   logger,
	}
}

func (s *postgresStore) Save(ctx context.Context, cr *CallRecord) (bool, error) {
	if cr.Status == "" {
		cr.Status = StatusRinging
	}

	db := s.postgres.DB(ctx)
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "call_id"}},
		DoNothing: true,
	}).Create(cr)
	if result.Error != nil {
		return false, fmt.Errorf("failed to save call record %s: %w", cr.CallID, result.Error)
	}
	if result.RowsAffected == 0 {
		s.logger.Debugf("call record already exists (webhook replay): callId=%s", cr.CallID)
		return false, nil
	}

	s.logger.Infof("saved call record: callId=%s, carrier=%s, direction=%s, caller=%s",
		cr.CallID, cr.Carrier, cr.Direction, cr.CallerNumber)
	return true, nil
}

func (s *postgresStore) Get(ctx context.Context, callID string) (*CallRecord, error) {
	db := s.postgres.DB(ctx)
	var cr CallRecord
	if err := db.Where("call_id = ?", callID).First(&cr).Error; err != nil {
		return nil, fmt.Errorf("call record not found: %s: %w", callID, err)
	}
	return &cr, nil
}

// Claim uses an atomic UPDATE ... WHERE status = 'ringing' so only one
// concurrent webhook delivery can move the record forward.
func (s *postgresStore) Claim(ctx context.Context, callID string) (*CallRecord, error) {
	db := s.postgres.DB(ctx)

	result := db.Model(&CallRecord{}).
		Where("call_id = ? AND status = ?", callID, StatusRinging).
		Updates(map[string]interface{}{
			"status":       StatusAnswering,
			"updated_date": time.Now(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to claim call record %s: %w", callID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("call record %s not found or already claimed", callID)
	}

	var cr CallRecord
	if err := db.Where("call_id = ?", callID).First(&cr).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch claimed call record %s: %w", callID, err)
	}

	s.logger.Debugf("claimed call record: callId=%s", callID)
	return &cr, nil
}

func (s *postgresStore) UpdateStatus(ctx context.Context, callID, status string) error {
	db := s.postgres.DB(ctx)
	result := db.Model(&CallRecord{}).
		Where("call_id = ? AND status NOT IN ?", callID, []string{StatusCompleted, StatusFailed}).
		Updates(map[string]interface{}{
			"status":       status,
			"updated_date": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update status on call record %s: %w", callID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("call record %s not found or already terminal", callID)
	}

	s.logger.Debugf("updated call record: callId=%s, status=%s", callID, status)
	return nil
}

// RecordTurn keeps the whole exchange in one UPDATE so a crashed writer can
// never leave the transcript and slot snapshot out of step.
func (s *postgresStore) RecordTurn(ctx context.Context, callID string, turn Turn) error {
	db := s.postgres.DB(ctx)

	appended := fmt.Sprintf("caller: %s\nreceptionist: %s\n", turn.CallerLine, turn.ResponseLine)
	result := db.Model(&CallRecord{}).
		Where("call_id = ?", callID).
		Updates(map[string]interface{}{
			"transcript":     gorm.Expr("transcript || ?", appended),
			"dialogue_state": turn.DialogueState,
			"slots":          turn.SlotsJSON,
			"updated_date":   time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record turn on call record %s: %w", callID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("call record %s not found", callID)
	}
	return nil
}

func (s *postgresStore) Finish(ctx context.Context, callID, status string) error {
	if status != StatusCompleted && status != StatusFailed {
		return fmt.Errorf("status %q is not terminal", status)
	}

	db := s.postgres.DB(ctx)
	result := db.Model(&CallRecord{}).
		Where("call_id = ?", callID).
		Updates(map[string]interface{}{
			"status":       status,
			"updated_date": time.Now(),
			"ended_date":   time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finish call record %s: %w", callID, result.Error)
	}

	s.logger.Debugf("finished call record: callId=%s, status=%s", callID, status)
	return nil
}

func (s *postgresStore) UpdateField(ctx context.Context, callID, field, value string) error {
	db := s.postgres.DB(ctx)

	// Allowlist of updatable fields to prevent SQL injection
	allowed := map[string]bool{
		"transfer_target": true,
		"recording_url":   true,
		"carrier":         true,
	}
	if !allowed[field] {
		return fmt.Errorf("field %q is not updatable on call record", field)
	}

	result := db.Model(&CallRecord{}).
		Where("call_id = ?", callID).
		Update(field, value)
	if result.Error != nil {
		return fmt.Errorf("failed to update field %s on call record %s: %w", field, callID, result.Error)
	}

	s.logger.Debugf("updated call record field: callId=%s, %s=%s", callID, field, value)
	return nil
}
