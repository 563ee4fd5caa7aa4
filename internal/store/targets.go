package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned by single-row lookups that found nothing.
var ErrNotFound = errors.New("store: not found")

// GetTarget loads a target by id, used to authenticate MT submissions.
func (s *Store) GetTarget(ctx context.Context, id uuid.UUID) (*Target, error) {
	var t Target
	row := s.db.QueryRowContext(ctx,
		`SELECT id, hmac_key, endpoint FROM targets WHERE id = $1`, id)
	if err := row.Scan(&t.ID, &t.HMACKey, &t.Endpoint); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get target: %w", err)
	}
	return &t, nil
}

// GetTargetByIMEI joins devices to targets to find the tenant that owns
// a device, used by process_mo.
func (s *Store) GetTargetByIMEI(ctx context.Context, imei string) (*Target, error) {
	var t Target
	row := s.db.QueryRowContext(ctx, `
		SELECT targets.id, targets.hmac_key, targets.endpoint
		FROM devices
		JOIN targets ON targets.id = devices.target
		WHERE devices.imei = $1`, imei)
	if err := row.Scan(&t.ID, &t.HMACKey, &t.Endpoint); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get target by imei: %w", err)
	}
	return &t, nil
}
