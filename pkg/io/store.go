package io

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store persists converted events in a SQLite database.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the database at path and brings its schema up to date.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("error opening database %s: %w", path, err)
	}
	// a single connection keeps in-memory databases alive and serializes writers
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun registers a conversion run and returns its id.
func (s *Store) BeginRun(source, mode string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, source, mode, created_at) VALUES (?, ?, ?, ?)`,
		id, source, mode, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("error registering run: %w", err)
	}
	return id, nil
}

// SaveEvents stores the events of one source file in a single transaction and sets their IDs.
func (s *Store) SaveEvents(runID, file string, events []*Event) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, e := range events {
		res, err := tx.Exec(
			`INSERT INTO events (run_id, file, frame_id, pulsemap, n_pulses) VALUES (?, ?, ?, ?, ?)`,
			runID, file, e.FrameID, e.Pulsemap, len(e.Pulses),
		)
		if err != nil {
			return fmt.Errorf("error saving event %d of %s: %w", e.FrameID, file, err)
		}
		if e.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		for i, p := range e.Pulses {
			_, err := tx.Exec(
				`INSERT INTO pulses (event_id, pulse_index, sensor_id, x, y, z, t, charge, auxiliary) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				e.ID, i, p.SensorID, p.X, p.Y, p.Z, p.Time, p.Charge, p.Auxiliary,
			)
			if err != nil {
				return fmt.Errorf("error saving pulse %d of event %d: %w", i, e.FrameID, err)
			}
		}
		if e.Truth != nil {
			_, err := tx.Exec(
				`INSERT INTO truth (event_id, azimuth, zenith) VALUES (?, ?, ?)`,
				e.ID, e.Truth.Azimuth, e.Truth.Zenith,
			)
			if err != nil {
				return fmt.Errorf("error saving truth of event %d: %w", e.FrameID, err)
			}
		}
	}
	return tx.Commit()
}

// Events loads all events of a pulse series, ordered by ID, with their pulses and truth.
func (s *Store) Events(pulsemap string) ([]*Event, error) {
	rows, err := s.db.Query(
		`SELECT e.event_id, e.frame_id, t.azimuth, t.zenith
		FROM events e LEFT JOIN truth t ON t.event_id = e.event_id
		WHERE e.pulsemap = ? ORDER BY e.event_id`, pulsemap)
	if err != nil {
		return nil, fmt.Errorf("error querying events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	byID := map[int64]*Event{}
	for rows.Next() {
		e := &Event{Pulsemap: pulsemap}
		var azimuth, zenith sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.FrameID, &azimuth, &zenith); err != nil {
			return nil, err
		}
		if azimuth.Valid && zenith.Valid {
			e.Truth = &Truth{Azimuth: azimuth.Float64, Zenith: zenith.Float64}
		}
		events = append(events, e)
		byID[e.ID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pulses, err := s.db.Query(
		`SELECT p.event_id, p.sensor_id, p.x, p.y, p.z, p.t, p.charge, p.auxiliary
		FROM pulses p JOIN events e ON e.event_id = p.event_id
		WHERE e.pulsemap = ? ORDER BY p.event_id, p.pulse_index`, pulsemap)
	if err != nil {
		return nil, fmt.Errorf("error querying pulses: %w", err)
	}
	defer pulses.Close()
	for pulses.Next() {
		var id int64
		var p Pulse
		if err := pulses.Scan(&id, &p.SensorID, &p.X, &p.Y, &p.Z, &p.Time, &p.Charge, &p.Auxiliary); err != nil {
			return nil, err
		}
		byID[id].Pulses = append(byID[id].Pulses, p)
	}
	return events, pulses.Err()
}

// CountEvents returns the number of stored events of a pulse series.
func (s *Store) CountEvents(pulsemap string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE pulsemap = ?`, pulsemap).Scan(&n)
	return n, err
}
