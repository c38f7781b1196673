package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/brainstorm/brainstorm/internal/models"
)

// SQLiteActivityTrail implements ActivityTrail using SQLite.
type SQLiteActivityTrail struct {
	db *sql.DB
}

// NewSQLiteActivityTrail opens the trail database, creating it if needed.
func NewSQLiteActivityTrail(dbPath string) (*SQLiteActivityTrail, error) {
	dbPath = expandPath(dbPath)

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	trail := &SQLiteActivityTrail{db: db}
	if err := trail.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return trail, nil
}

func (t *SQLiteActivityTrail) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS activity_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id TEXT NOT NULL,
		intent TEXT,
		agents_run TEXT,
		items_added INTEGER,
		failure TEXT,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_activity_project ON activity_log(project_id);
	CREATE INDEX IF NOT EXISTS idx_activity_started ON activity_log(started_at);
	`
	_, err := t.db.Exec(schema)
	return err
}

// Record inserts one background pipeline run.
func (t *SQLiteActivityTrail) Record(ctx context.Context, entry ActivityEntry) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO activity_log (project_id, intent, agents_run, items_added, failure, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ProjectID,
		string(entry.Intent),
		strings.Join(entry.AgentsRun, ","),
		entry.ItemsAdded,
		entry.Failure,
		entry.StartedAt,
		entry.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// RecentRuns returns the latest runs for a project, newest first.
func (t *SQLiteActivityTrail) RecentRuns(ctx context.Context, projectID string, limit int) ([]ActivityEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := t.db.QueryContext(ctx, `
		SELECT intent, agents_run, items_added, failure, started_at, duration_ms
		FROM activity_log
		WHERE project_id = ?
		ORDER BY started_at DESC
		LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	var entries []ActivityEntry
	for rows.Next() {
		var (
			entry      ActivityEntry
			intent     string
			agents     string
			durationMS int64
		)
		if err := rows.Scan(&intent, &agents, &entry.ItemsAdded, &entry.Failure, &entry.StartedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		entry.ProjectID = projectID
		entry.Intent = models.IntentType(intent)
		if agents != "" {
			entry.AgentsRun = strings.Split(agents, ",")
		}
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (t *SQLiteActivityTrail) Close() error {
	return t.db.Close()
}
