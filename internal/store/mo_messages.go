package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// InsertMOMessage persists a freshly decoded MO message in state
// Received.
func (s *Store) InsertMOMessage(ctx context.Context, m MOMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mo_messages
			(id, cdr_reference, imei, session_status, mo_msn, mt_msn, time_of_session,
			 latitude, longitude, cep_radius, data, processing_status, received)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		m.ID,
		int32(m.CDRReference),
		m.IMEI,
		m.SessionStatus,
		int16(m.MOMSN),
		int16(m.MTMSN),
		m.TimeOfSession,
		toNullFloat64(m.Latitude),
		toNullFloat64(m.Longitude),
		toNullCEP(m.CEPRadius),
		m.Data,
		m.ProcessingStatus,
		m.Received,
	)
	if err != nil {
		return fmt.Errorf("store: insert mo message: %w", err)
	}
	return nil
}

// GetMOMessage loads one mo_message row by id.
func (s *Store) GetMOMessage(ctx context.Context, id uuid.UUID) (*MOMessage, error) {
	var (
		m            MOMessage
		cdrRef       int32
		moMSN, mtMSN int16
		lat, lon     sql.NullFloat64
		cep          sql.NullInt32
	)

	row := s.db.QueryRowContext(ctx, `
		SELECT id, cdr_reference, imei, session_status, mo_msn, mt_msn, time_of_session,
		       latitude, longitude, cep_radius, data, processing_status, received
		FROM mo_messages WHERE id = $1`, id)

	if err := row.Scan(&m.ID, &cdrRef, &m.IMEI, &m.SessionStatus, &moMSN, &mtMSN, &m.TimeOfSession,
		&lat, &lon, &cep, &m.Data, &m.ProcessingStatus, &m.Received); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get mo message: %w", err)
	}

	m.CDRReference = uint32(cdrRef)
	m.MOMSN = uint16(moMSN)
	m.MTMSN = uint16(mtMSN)
	m.Latitude = nullFloat32(lat)
	m.Longitude = nullFloat32(lon)
	if cep.Valid {
		v := uint32(cep.Int32)
		m.CEPRadius = &v
	}

	return &m, nil
}

// SetMOProcessingStatus transitions processing_status, guarded so a
// message already in a terminal state is never altered again.
func (s *Store) SetMOProcessingStatus(ctx context.Context, id uuid.UUID, status ProcessingStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mo_messages SET processing_status = $2
		WHERE id = $1 AND processing_status = $3`,
		id, status, ProcessingReceived)
	if err != nil {
		return fmt.Errorf("store: set mo processing status: %w", err)
	}
	return nil
}

func toNullCEP(v *uint32) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}
