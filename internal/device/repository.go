package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the persistence contract for devices.
type Repository interface {
	// Save inserts or updates a device.
	Save(ctx context.Context, d *Device) error

	// GetByID retrieves a device by its ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices ordered by ID.
	List(ctx context.Context) ([]*Device, error)

	// Delete removes a device and its transition history.
	Delete(ctx context.Context, id string) error

	// RecordTransition appends a state transition to the history.
	RecordTransition(ctx context.Context, deviceID string, from, to State, reason string) error

	// History retrieves recent transitions for a device, newest first.
	// A non-positive limit defaults to 50.
	History(ctx context.Context, deviceID string, limit int) ([]TransitionRecord, error)
}

// SQLiteRepository implements Repository backed by SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository using the given database handle.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save inserts or updates a device using an upsert.
func (r *SQLiteRepository) Save(ctx context.Context, d *Device) error {
	if err := d.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO devices (
			id, name, transport, state, last_health_check_at,
			reconnect_attempt, recording, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			transport = excluded.transport,
			state = excluded.state,
			last_health_check_at = excluded.last_health_check_at,
			reconnect_attempt = excluded.reconnect_attempt,
			recording = excluded.recording,
			updated_at = excluded.updated_at
	`

	var lastCheck any
	if d.LastHealthCheckAt != nil {
		lastCheck = d.LastHealthCheckAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := r.db.ExecContext(ctx, query,
		d.ID,
		d.Name,
		string(d.Transport),
		string(d.State),
		lastCheck,
		d.ReconnectAttempt,
		boolToInt(d.Recording),
		d.CreatedAt.UTC().Format(time.RFC3339Nano),
		d.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving device %s: %w", d.ID, err)
	}
	return nil
}

// GetByID retrieves a device by its ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `
		SELECT id, name, transport, state, last_health_check_at,
		       reconnect_attempt, recording, created_at, updated_at
		FROM devices
		WHERE id = ?
	`

	d, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device %s: %w", id, err)
	}
	return d, nil
}

// List retrieves all devices ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Device, error) {
	query := `
		SELECT id, name, transport, state, last_health_check_at,
		       reconnect_attempt, recording, created_at, updated_at
		FROM devices
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// Delete removes a device and its transition history.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM state_transitions WHERE device_id = ?`, id); err != nil {
		return fmt.Errorf("deleting transitions for %s: %w", id, err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}

	return tx.Commit()
}

// RecordTransition appends a state transition to the history.
func (r *SQLiteRepository) RecordTransition(ctx context.Context, deviceID string, from, to State, reason string) error {
	query := `
		INSERT INTO state_transitions (device_id, from_state, to_state, reason, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		deviceID,
		string(from),
		string(to),
		reason,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording transition for %s: %w", deviceID, err)
	}
	return nil
}

// History retrieves recent transitions for a device, newest first.
func (r *SQLiteRepository) History(ctx context.Context, deviceID string, limit int) ([]TransitionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, device_id, from_state, to_state, reason, created_at
		FROM state_transitions
		WHERE device_id = ?
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying transitions for %s: %w", deviceID, err)
	}
	defer rows.Close()

	var records []TransitionRecord
	for rows.Next() {
		var rec TransitionRecord
		var from, to, createdAt string
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &from, &to, &rec.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning transition row: %w", err)
		}
		rec.From = State(from)
		rec.To = State(to)
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing transition timestamp: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for shared scanning.
type scanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a device row into a Device struct.
func scanDevice(s scanner) (*Device, error) {
	var d Device
	var transport, state, createdAt, updatedAt string
	var lastCheck sql.NullString
	var recording int

	err := s.Scan(
		&d.ID, &d.Name, &transport, &state, &lastCheck,
		&d.ReconnectAttempt, &recording, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Transport = TransportKind(transport)
	d.State = State(state)
	d.Recording = recording != 0

	if lastCheck.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastCheck.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last health check: %w", err)
		}
		d.LastHealthCheckAt = &t
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
