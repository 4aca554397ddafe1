// Package pgstore persists flight recordings to PostgreSQL via
// lib/pq, for deployments that want durable, queryable recordings
// instead of (or in addition to) flat "FDPR" files. Grounded on
// infrastructure/config/services.go's lib/pq usage pattern: a plain
// database/sql handle opened with the pq driver, no ORM.
package pgstore

import (
	"bytes"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/fdpkit/fdp/internal/obs/errkind"
	"github.com/fdpkit/fdp/system/recorder"
)

// Store persists TickRecords to a `fdp_ticks` table.
type Store struct {
	db *sql.DB
}

// Open connects to a PostgreSQL instance via the pq driver and ensures
// the backing table exists.
func Open(dataSourceName string) (*Store, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, errkind.Wrap(errkind.Invariant, "pgstore: failed to open connection", err)
	}
	if err := db.Ping(); err != nil {
		return nil, errkind.Wrap(errkind.Conflict, "pgstore: failed to reach database", err)
	}
	const ddl = `
CREATE TABLE IF NOT EXISTS fdp_ticks (
	world        TEXT NOT NULL,
	tick         BIGINT NOT NULL,
	time_s       DOUBLE PRECISION NOT NULL,
	delta        REAL NOT NULL,
	inputs       BYTEA,
	structural   BYTEA NOT NULL,
	events       BYTEA NOT NULL,
	PRIMARY KEY (world, tick)
)`
	if _, err := db.Exec(ddl); err != nil {
		return nil, errkind.Wrap(errkind.Invariant, "pgstore: failed to ensure schema", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Append persists one tick record for world, encoding its structural
// and event logs via recorder.Writer so the stored bytes are the exact
// wire-format body recorder.Reader already knows how to parse back.
func (s *Store) Append(world string, rec recorder.TickRecord) error {
	structural, events, err := encodeBodies(rec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO fdp_ticks (world, tick, time_s, delta, inputs, structural, events)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (world, tick) DO UPDATE SET time_s = EXCLUDED.time_s`,
		world, rec.Tick, rec.TimeS, rec.Delta, rec.Inputs, structural, events,
	)
	if err != nil {
		return errkind.Wrap(errkind.Conflict, "pgstore: insert failed", err)
	}
	return nil
}

// CountTicks returns how many ticks are stored for world, used by
// fdpinspect-style tooling to report recording length without reading
// every row.
func (s *Store) CountTicks(world string) (int64, error) {
	var n int64
	row := s.db.QueryRow(`SELECT count(*) FROM fdp_ticks WHERE world = $1`, world)
	if err := row.Scan(&n); err != nil {
		return 0, errkind.Wrap(errkind.Conflict, "pgstore: count query failed", err)
	}
	return n, nil
}

// encodeBodies serializes a record's structural/event logs through the
// same wire encoder recorder.Writer uses, so pgstore never maintains a
// second encoding.
func encodeBodies(rec recorder.TickRecord) (structural, events []byte, err error) {
	var sb, eb bytes.Buffer

	w := recorder.NewWriter(&sb)
	bodyOnly := recorder.TickRecord{Structural: rec.Structural}
	if err := w.WriteTick(bodyOnly, nil); err != nil {
		return nil, nil, err
	}
	w.Close()

	w2 := recorder.NewWriter(&eb)
	eventsOnly := recorder.TickRecord{Events: rec.Events}
	if err := w2.WriteTick(eventsOnly, nil); err != nil {
		return nil, nil, err
	}
	w2.Close()

	return sb.Bytes(), eb.Bytes(), nil
}
