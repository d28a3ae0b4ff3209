package report

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Stores every record of one run, keyed by a fresh run id
type SQLite struct {
	mu     sync.Mutex
	db     *sql.DB
	run_id string
}

// Opens (or creates) the database at path, migrates it to the latest
// schema and registers a new run for source
func NewSQLite(ctx context.Context, logger *slog.Logger, path, source string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("Can't open %s: %w", path, err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	if err := migrateUp(db, logger); err != nil {
		db.Close()
		return nil, err
	}
	s := &SQLite{db: db, run_id: uuid.NewString()}
	_, err = db.ExecContext(ctx,
		"INSERT INTO runs (id, source, started_at) VALUES (?, ?, ?)",
		s.run_id, source, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("Can't register run: %w", err)
	}
	logger.Info("Run registered", "run_id", s.run_id, "path", path)
	return s, nil
}

func migrateUp(db *sql.DB, logger *slog.Logger) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("Can't load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("Can't create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("Can't create migrator: %w", err)
	}
	// m.Close() would close db
	m.Log = &migrateLogger{logger: logger}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("Migration failed: %w", err)
	}
	return nil
}

type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "migrate")
}

func (l *migrateLogger) Verbose() bool { return false }

func (s *SQLite) RunId() string { return s.run_id }

// Frame rows are replaced if the same index is written twice,
// the final record repeats the last frame's index
func (s *SQLite) Write(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ERR_SINK_CLOSED
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO frames
		(run_id, frame_index, recorded_at, video_time_ms, state, total_up, total_down)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.run_id, r.Frame, r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.VideoTime.Milliseconds(), r.State, r.Counts.TotalUp, r.Counts.TotalDown)
	if err != nil {
		return fmt.Errorf("Can't insert frame %d: %w", r.Frame, err)
	}
	for _, tr := range r.Tracks {
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO tracks
			(run_id, frame_index, identity_id, x, y, attribute)
			VALUES (?, ?, ?, ?, ?, ?)`,
			s.run_id, r.Frame, tr.Id, tr.X, tr.Y, tr.Attribute)
		if err != nil {
			return fmt.Errorf("Can't insert track %d: %w", tr.Id, err)
		}
	}
	for _, label := range r.Attributes() {
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO attribute_counts
			(run_id, frame_index, attribute, up, down)
			VALUES (?, ?, ?, ?, ?)`,
			s.run_id, r.Frame, label, r.Counts.Up[label], r.Counts.Down[label])
		if err != nil {
			return fmt.Errorf("Can't insert %s counts: %w", label, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
