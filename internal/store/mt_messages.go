package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// InsertMTMessage persists a freshly validated MT submission in state
// Received.
func (s *Store) InsertMTMessage(ctx context.Context, m MTMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mt_messages (id, imei, priority, data, message_status, processing_status, received, target)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.IMEI, int16(m.Priority), m.Data, m.MessageStatus, m.ProcessingStatus, m.Received, m.Target,
	)
	if err != nil {
		return fmt.Errorf("store: insert mt message: %w", err)
	}
	return nil
}

// GetMTMessage loads one mt_messages row by id.
func (s *Store) GetMTMessage(ctx context.Context, id uuid.UUID) (*MTMessage, error) {
	var (
		m        MTMessage
		priority int16
		status   sql.NullString
	)

	row := s.db.QueryRowContext(ctx, `
		SELECT id, imei, priority, data, message_status, processing_status, received, target
		FROM mt_messages WHERE id = $1`, id)

	if err := row.Scan(&m.ID, &m.IMEI, &priority, &m.Data, &status, &m.ProcessingStatus, &m.Received, &m.Target); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get mt message: %w", err)
	}

	m.Priority = uint16(priority)
	if status.Valid {
		s := MessageStatus(status.String)
		m.MessageStatus = &s
	}

	return &m, nil
}

// SetMTTerminal sets message_status and processing_status together,
// guarded the same way as SetMOProcessingStatus: a terminal mt_message
// is never altered again, and message_status is always set in the same
// write that reaches a terminal processing_status.
func (s *Store) SetMTTerminal(ctx context.Context, id uuid.UUID, processing ProcessingStatus, message MessageStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mt_messages SET processing_status = $2, message_status = $3
		WHERE id = $1 AND processing_status = $4`,
		id, processing, message, ProcessingReceived)
	if err != nil {
		return fmt.Errorf("store: set mt terminal: %w", err)
	}
	return nil
}

// SetMTFailed marks an mt_message Failed without a message_status, used
// when an unexpected negative confirmation has no corresponding
// MessageStatus value.
func (s *Store) SetMTFailed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mt_messages SET processing_status = $2
		WHERE id = $1 AND processing_status = $3`,
		id, ProcessingFailed, ProcessingReceived)
	if err != nil {
		return fmt.Errorf("store: set mt failed: %w", err)
	}
	return nil
}
