package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Column order is the stable external layout; reporting tools depend on it.
const schema = `
CREATE TABLE IF NOT EXISTS maneuvers (
	id           TEXT PRIMARY KEY,
	started_at   TEXT NOT NULL,
	ended_at     TEXT,
	trigger_type TEXT NOT NULL,
	low_start    REAL,
	high_start   REAL,
	low_end      REAL,
	high_end     REAL,
	stop_reason  TEXT
);
CREATE INDEX IF NOT EXISTS idx_maneuvers_started_at ON maneuvers(started_at);
`

// timeFormat stores timestamps as fixed-width RFC3339 UTC strings, so
// lexicographic order is chronological order and started_at can be
// compared and indexed as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is a Store backed by a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// One writer at a time; the engine's recorder goroutine and the
	// prune timer share this connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append persists a new open maneuver record.
func (s *SQLiteStore) Append(m Maneuver) error {
	_, err := s.db.Exec(
		`INSERT INTO maneuvers (id, started_at, ended_at, trigger_type, low_start, high_start, low_end, high_end, stop_reason)
		 VALUES (?, ?, NULL, ?, ?, ?, NULL, NULL, NULL)`,
		m.ID,
		m.StartedAt.UTC().Format(timeFormat),
		string(m.Trigger),
		m.StartLevels.Low,
		m.StartLevels.High,
	)
	if err != nil {
		return fmt.Errorf("append maneuver %s: %w", m.ID, err)
	}
	return nil
}

// Finalize closes an open record.
func (s *SQLiteStore) Finalize(id string, endedAt time.Time, end Levels, reason StopReason) error {
	res, err := s.db.Exec(
		`UPDATE maneuvers SET ended_at = ?, low_end = ?, high_end = ?, stop_reason = ?
		 WHERE id = ? AND ended_at IS NULL`,
		endedAt.UTC().Format(timeFormat),
		end.Low,
		end.High,
		string(reason),
		id,
	)
	if err != nil {
		return fmt.Errorf("finalize maneuver %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize maneuver %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("finalize maneuver %s: %w", id, ErrNotFound)
	}
	return nil
}

// Query returns finalized maneuvers started at or after since, in
// start-time order.
func (s *SQLiteStore) Query(since time.Time) ([]Maneuver, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, ended_at, trigger_type, low_start, high_start, low_end, high_end, stop_reason
		 FROM maneuvers
		 WHERE ended_at IS NOT NULL AND started_at >= ?
		 ORDER BY started_at`,
		since.UTC().Format(timeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("query maneuvers: %w", err)
	}
	defer rows.Close()

	var out []Maneuver
	for rows.Next() {
		var (
			m                   Maneuver
			startedAt           string
			endedAt, reason     sql.NullString
			lowStart, highStart sql.NullFloat64
			lowEnd, highEnd     sql.NullFloat64
		)
		err := rows.Scan(
			&m.ID, &startedAt, &endedAt, (*string)(&m.Trigger),
			&lowStart, &highStart, &lowEnd, &highEnd,
			&reason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan maneuver: %w", err)
		}
		m.StartLevels = Levels{Low: nullToPtr(lowStart), High: nullToPtr(highStart)}
		m.EndLevels = Levels{Low: nullToPtr(lowEnd), High: nullToPtr(highEnd)}
		if m.StartedAt, err = time.Parse(timeFormat, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if endedAt.Valid {
			t, err := time.Parse(timeFormat, endedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse ended_at: %w", err)
			}
			m.EndedAt = &t
		}
		if reason.Valid {
			m.StopReason = StopReason(reason.String)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LastStartedAt returns the most recent start time across all records.
func (s *SQLiteStore) LastStartedAt() (time.Time, bool, error) {
	var startedAt sql.NullString
	err := s.db.QueryRow(`SELECT MAX(started_at) FROM maneuvers`).Scan(&startedAt)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last started_at: %w", err)
	}
	if !startedAt.Valid {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(timeFormat, startedAt.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last started_at: %w", err)
	}
	return t, true, nil
}

// Prune deletes finalized records started before cutoff.
func (s *SQLiteStore) Prune(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM maneuvers WHERE ended_at IS NOT NULL AND started_at < ?`,
		cutoff.UTC().Format(timeFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("prune maneuvers: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullToPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
