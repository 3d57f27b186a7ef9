// Package storage records telemetry reports to SQLite so a run can be
// inspected after the fact.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sweeney/telemetry-bridge/internal/logic"
)

// Recorder persists reports grouped into sessions (one per bridge run).
type Recorder interface {
	CreateSession(ctx context.Context, config any) (int64, error)
	RecordTick(ctx context.Context, sessionID int64, r logic.Report) error
	Close() error
}

// Session is one recorded bridge run.
type Session struct {
	ID        int64
	StartTime time.Time
	Config    *string
}

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	db     *sql.DB
	dbOnce sync.Once
	dbErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore returns a store for dbPath. The file and schema are
// created on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func (s *SqliteStore) getDB() (*sql.DB, error) {
	s.dbOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.dbErr = fmt.Errorf("opening database: %w", err)
			return
		}

		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.db = db
	})

	return s.db, s.dbErr
}

// Open creates the database file and schema now instead of on first write,
// so a bad path is reported at startup.
func (s *SqliteStore) Open() error {
	_, err := s.getDB()
	return err
}

// CreateSession starts a new session. config is stored as JSON unless it is
// already a string or byte slice.
func (s *SqliteStore) CreateSession(ctx context.Context, config any) (sessionID int64, err error) {
	var configData sql.NullString

	switch c := config.(type) {
	case nil:
	case string:
		configData = sql.NullString{String: c, Valid: true}
	case []byte:
		configData = sql.NullString{String: string(c), Valid: true}
	default:
		var p []byte
		if p, err = json.Marshal(c); err != nil {
			err = fmt.Errorf("marshaling config: %w", err)
			return
		}
		configData = sql.NullString{String: string(p), Valid: true}
	}

	db, err := s.getDB()
	if err != nil {
		return
	}

	result, err := db.ExecContext(ctx, insertSessionSQL, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

// Sessions lists every recorded session, oldest first.
func (s *SqliteStore) Sessions(ctx context.Context) (sessions []Session, err error) {
	db, err := s.getDB()
	if err != nil {
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess Session
		var config sql.NullString
		if err = rows.Scan(&sess.ID, &sess.StartTime, &config); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		if config.Valid {
			sess.Config = &config.String
		}
		sessions = append(sessions, sess)
	}
	err = rows.Err()
	return
}

// RecordTick stores one report. Non-finite readings are stored as NULL and
// read back as NaN.
func (s *SqliteStore) RecordTick(ctx context.Context, sessionID int64, r logic.Report) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, insertTickSQL,
		sessionID,
		r.TimeSec,
		toNullFloat(r.Altitude),
		toNullFloat(r.Drop),
		toNullFloat(r.Gyro[0]),
		toNullFloat(r.Gyro[1]),
		toNullFloat(r.Gyro[2]),
		toNullFloat(r.Magnetometer[0]),
		toNullFloat(r.Magnetometer[1]),
		toNullFloat(r.Magnetometer[2]),
		string(r.Status),
		int64(r.Flags),
	)
	if err != nil {
		return fmt.Errorf("inserting tick %d: %w", r.TimeSec, err)
	}
	return nil
}

// Ticks returns the reports of a session in tick order.
func (s *SqliteStore) Ticks(ctx context.Context, sessionID int64) (reports []logic.Report, err error) {
	db, err := s.getDB()
	if err != nil {
		return
	}

	rows, err := db.QueryContext(ctx, selectTicksSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying ticks: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			r      logic.Report
			vals   [8]sql.NullFloat64
			status string
			flags  int64
		)
		if err = rows.Scan(&r.TimeSec,
			&vals[0], &vals[1],
			&vals[2], &vals[3], &vals[4],
			&vals[5], &vals[6], &vals[7],
			&status, &flags); err != nil {
			err = fmt.Errorf("scanning tick: %w", err)
			return
		}
		r.Altitude = fromNullFloat(vals[0])
		r.Drop = fromNullFloat(vals[1])
		for i := 0; i < 3; i++ {
			r.Gyro[i] = fromNullFloat(vals[2+i])
			r.Magnetometer[i] = fromNullFloat(vals[5+i])
		}
		r.Status = logic.Status(status)
		r.Flags = logic.FaultFlags(flags)
		reports = append(reports, r)
	}
	err = rows.Err()
	return
}

// Close closes the database. It is safe to call more than once.
func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		if s.db != nil {
			s.closeErr = s.db.Close()
			s.db = nil
		}
	})
	return s.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil {
		*err = errors.Join(*err, cErr)
	}
}

func toNullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullFloat(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
