package store

import (
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/kilupskalvis/scenepack/internal/models"
	_ "modernc.org/sqlite"
)

const currentHistoryVersion = 1

// History records repack runs in a SQLite database
type History struct {
	db *sql.DB
}

// OpenHistory opens the history database and creates its schema
func OpenHistory(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	h := &History{db: db}
	if err := h.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

// Close closes the database connection
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) initialize() error {
	schema := `
	-- One row per repack run
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		bundle_path TEXT NOT NULL,
		out_path TEXT NOT NULL,
		bundle_name TEXT NOT NULL,
		cab_name TEXT NOT NULL,
		redirected INTEGER DEFAULT 0,
		moved_path_id INTEGER DEFAULT 0
	);

	-- Container entries written by a run
	CREATE TABLE IF NOT EXISTS containers (
		run_id INTEGER NOT NULL,
		path TEXT NOT NULL,
		game_object TEXT NOT NULL,
		asset_path_id INTEGER NOT NULL,
		preload_index INTEGER NOT NULL,
		preload_size INTEGER NOT NULL,
		PRIMARY KEY (run_id, path),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	-- Requested names and the container path exposing them
	CREATE TABLE IF NOT EXISTS targets (
		run_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		container_path TEXT NOT NULL,
		PRIMARY KEY (run_id, name),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	-- Requested names that could not be repacked
	CREATE TABLE IF NOT EXISTS not_repacked (
		run_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		PRIMARY KEY (run_id, name),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS history_version (
		version INTEGER PRIMARY KEY
	);

	CREATE INDEX IF NOT EXISTS idx_runs_bundle ON runs(bundle_path);
	`

	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	_, err := h.db.Exec("INSERT OR REPLACE INTO history_version (version) VALUES (?)", currentHistoryVersion)
	if err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// RecordRun stores a finished run and sets its ID
func (h *History) RecordRun(r *models.RepackResult) error {
	tx, err := h.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	res, err := tx.Exec(`
		INSERT INTO runs (timestamp, bundle_path, out_path, bundle_name, cab_name, redirected, moved_path_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ts.Format(time.RFC3339Nano), r.BundlePath, r.OutPath, r.BundleName, r.CabName, r.Redirected, r.MovedPathID)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}

	for _, c := range r.Containers {
		_, err := tx.Exec(`
			INSERT INTO containers (run_id, path, game_object, asset_path_id, preload_index, preload_size)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, c.Path, r.GameObjectAssets[c.Path], c.Asset.PathID, c.PreloadIndex, c.PreloadSize)
		if err != nil {
			return fmt.Errorf("insert container %s: %w", c.Path, err)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(r.Targets)) {
		if _, err := tx.Exec("INSERT INTO targets (run_id, name, container_path) VALUES (?, ?, ?)",
			id, name, r.Targets[name]); err != nil {
			return fmt.Errorf("insert target %s: %w", name, err)
		}
	}
	for _, name := range r.NonRepackedAssets {
		if _, err := tx.Exec("INSERT OR IGNORE INTO not_repacked (run_id, name) VALUES (?, ?)", id, name); err != nil {
			return fmt.Errorf("insert not repacked %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	r.ID = id
	r.Timestamp = ts
	return nil
}

// ListRuns returns run summaries, newest first. Container, target and
// not-repacked details are left empty; use GetRun for those. A limit of 0
// returns every run.
func (h *History) ListRuns(limit int) ([]*models.RepackResult, error) {
	query := `
		SELECT id, timestamp, bundle_path, out_path, bundle_name, cab_name, redirected, moved_path_id
		FROM runs ORDER BY id DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.RepackResult
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns a run with all of its details
func (h *History) GetRun(id int64) (*models.RepackResult, error) {
	row := h.db.QueryRow(`
		SELECT id, timestamp, bundle_path, out_path, bundle_name, cab_name, redirected, moved_path_id
		FROM runs WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: run %d", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := h.db.Query(`
		SELECT path, game_object, asset_path_id, preload_index, preload_size
		FROM containers WHERE run_id = ? ORDER BY preload_index, path
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c models.ContainerEntry
		var goName string
		if err := rows.Scan(&c.Path, &goName, &c.Asset.PathID, &c.PreloadIndex, &c.PreloadSize); err != nil {
			return nil, err
		}
		r.Containers = append(r.Containers, c)
		r.GameObjectAssets[c.Path] = goName
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	targets, err := h.db.Query("SELECT name, container_path FROM targets WHERE run_id = ?", id)
	if err != nil {
		return nil, err
	}
	defer targets.Close()
	for targets.Next() {
		var name, path string
		if err := targets.Scan(&name, &path); err != nil {
			return nil, err
		}
		r.Targets[name] = path
	}
	if err := targets.Err(); err != nil {
		return nil, err
	}

	missing, err := h.db.Query("SELECT name FROM not_repacked WHERE run_id = ? ORDER BY name", id)
	if err != nil {
		return nil, err
	}
	defer missing.Close()
	for missing.Next() {
		var name string
		if err := missing.Scan(&name); err != nil {
			return nil, err
		}
		r.NonRepackedAssets = append(r.NonRepackedAssets, name)
	}
	return r, missing.Err()
}

// DeleteRun removes a run and its details
func (h *History) DeleteRun(id int64) error {
	res, err := h.db.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: run %d", models.ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.RepackResult, error) {
	r := models.NewRepackResult()
	var ts string
	if err := row.Scan(&r.ID, &ts, &r.BundlePath, &r.OutPath, &r.BundleName, &r.CabName, &r.Redirected, &r.MovedPathID); err != nil {
		return nil, err
	}
	r.Timestamp = parseTimestamp(ts)
	return r, nil
}

// parseTimestamp parses a timestamp string from SQLite in various formats
func parseTimestamp(s string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
