// Package history persists accepted feed snapshots to SQLite. The dashboard
// reloads the last status, code and path from it on start, and the debug
// console inspects it.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/pathview/internal/feed"
	"github.com/banshee-data/pathview/internal/monitoring"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a feed has no recorded snapshot.
var ErrNotFound = errors.New("history: no snapshot")

// Feed names used as the feed column.
const (
	FeedStatus = "status"
	FeedCode   = "code"
	FeedPath   = "path"
)

// Snapshot is one stored feed value.
type Snapshot struct {
	ID       string    `json:"id"`
	Feed     string    `json:"feed"`
	Version  uint64    `json:"version"`
	Payload  string    `json:"payload"`
	Received time.Time `json:"received"`
}

// Store is the snapshot database.
type Store struct {
	*sql.DB
	path string
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single writer keeps SQLite out of SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", p, err)
		}
	}

	s := &Store{DB: db, path: path}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// MigrateUp runs all pending embedded migrations.
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current schema version and dirty state.
func (s *Store) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// newMigrate builds a migrate instance over the embedded migrations. It is
// not closed because that would close the shared *sql.DB.
func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{monitoring.Component("migrate")}
	return m, nil
}

type migrateLogger struct{ monitoring.Logger }

func (migrateLogger) Verbose() bool { return false }

// Insert stores a snapshot, assigning an ID and receive time if unset.
func (s *Store) Insert(ctx context.Context, snap Snapshot) (Snapshot, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.Received.IsZero() {
		snap.Received = time.Now()
	}
	_, err := s.ExecContext(ctx,
		`INSERT INTO snapshots (snapshot_id, feed, version, payload_json, received_unix_nanos)
		 VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.Feed, int64(snap.Version), snap.Payload, snap.Received.UnixNano())
	if err != nil {
		return snap, fmt.Errorf("insert %s snapshot: %w", snap.Feed, err)
	}
	return snap, nil
}

// InsertPathSummary stores the derived statistics for a path snapshot.
func (s *Store) InsertPathSummary(ctx context.Context, snapshotID string, sum feed.Summary) error {
	_, err := s.ExecContext(ctx,
		`INSERT INTO path_summaries (snapshot_id, waypoints, grasp_close, grasp_open, length_m)
		 VALUES (?, ?, ?, ?, ?)`,
		snapshotID, sum.Waypoints, sum.GraspClose, sum.GraspOpen, sum.LengthM)
	if err != nil {
		return fmt.Errorf("insert path summary: %w", err)
	}
	return nil
}

// Latest returns the most recently received snapshot of feed.
func (s *Store) Latest(ctx context.Context, feedName string) (Snapshot, error) {
	snaps, err := s.Recent(ctx, feedName, 1)
	if err != nil {
		return Snapshot{}, err
	}
	if len(snaps) == 0 {
		return Snapshot{}, ErrNotFound
	}
	return snaps[0], nil
}

// Recent returns up to limit snapshots of feed, newest first.
func (s *Store) Recent(ctx context.Context, feedName string, limit int) ([]Snapshot, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT snapshot_id, feed, version, payload_json, received_unix_nanos
		 FROM snapshots WHERE feed = ?
		 ORDER BY received_unix_nanos DESC, rowid DESC LIMIT ?`,
		feedName, limit)
	if err != nil {
		return nil, fmt.Errorf("query %s snapshots: %w", feedName, err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var version, nanos int64
		if err := rows.Scan(&snap.ID, &snap.Feed, &version, &snap.Payload, &nanos); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.Version = uint64(version)
		snap.Received = time.Unix(0, nanos)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Count returns the number of stored snapshots of feed.
func (s *Store) Count(ctx context.Context, feedName string) (int, error) {
	var n int
	err := s.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots WHERE feed = ?`, feedName).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s snapshots: %w", feedName, err)
	}
	return n, nil
}

// Prune keeps the newest retain snapshots of feed and deletes the rest,
// returning how many were deleted. retain <= 0 keeps everything.
func (s *Store) Prune(ctx context.Context, feedName string, retain int) (int64, error) {
	if retain <= 0 {
		return 0, nil
	}
	res, err := s.ExecContext(ctx,
		`DELETE FROM snapshots WHERE feed = ? AND snapshot_id NOT IN (
			SELECT snapshot_id FROM snapshots WHERE feed = ?
			ORDER BY received_unix_nanos DESC, rowid DESC LIMIT ?
		)`, feedName, feedName, retain)
	if err != nil {
		return 0, fmt.Errorf("prune %s snapshots: %w", feedName, err)
	}
	return res.RowsAffected()
}

// LatestPathSummary returns the summary stored with the newest path snapshot.
func (s *Store) LatestPathSummary(ctx context.Context) (feed.Summary, error) {
	var sum feed.Summary
	err := s.QueryRowContext(ctx,
		`SELECT p.waypoints, p.grasp_close, p.grasp_open, p.length_m
		 FROM path_summaries p JOIN snapshots s ON s.snapshot_id = p.snapshot_id
		 ORDER BY s.received_unix_nanos DESC, s.rowid DESC LIMIT 1`).
		Scan(&sum.Waypoints, &sum.GraspClose, &sum.GraspOpen, &sum.LengthM)
	if errors.Is(err, sql.ErrNoRows) {
		return sum, ErrNotFound
	}
	if err != nil {
		return sum, fmt.Errorf("query path summary: %w", err)
	}
	sum.Renderable = sum.Waypoints >= 2
	return sum, nil
}
