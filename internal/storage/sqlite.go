package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timestampLayout is fixed width so text ordering matches time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps a SQLite database holding drafts, writing samples, the job
// queue and a small key/value table.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "draftr.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Drafts ---

func (s *Store) SaveDraft(d Draft) error {
	items, err := json.Marshal(nonNil(d.Items))
	if err != nil {
		return fmt.Errorf("encoding items: %w", err)
	}
	questions, err := json.Marshal(nonNil(d.Questions))
	if err != nil {
		return fmt.Errorf("encoding questions: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO drafts (id, created_at, kind, input, tone, model, items_json, questions_json, raw_output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.CreatedAt.UTC().Format(timestampLayout), d.Kind, d.Input, d.Tone, d.Model,
		string(items), string(questions), d.RawOutput,
	)
	return err
}

func (s *Store) GetDraft(id string) (Draft, error) {
	row := s.db.QueryRow(`
		SELECT id, created_at, kind, input, tone, model, items_json, questions_json, raw_output
		FROM drafts WHERE id = ?`, id)
	d, err := scanDraft(row)
	if err == sql.ErrNoRows {
		return Draft{}, ErrNotFound
	}
	return d, err
}

// ListDrafts returns the most recent drafts, optionally filtered by kind.
func (s *Store) ListDrafts(kind string, limit int) ([]Draft, error) {
	query := `SELECT id, created_at, kind, input, tone, model, items_json, questions_json, raw_output FROM drafts`
	args := []interface{}{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDraft(sc scanner) (Draft, error) {
	var d Draft
	var createdAt, items, questions string
	if err := sc.Scan(&d.ID, &createdAt, &d.Kind, &d.Input, &d.Tone, &d.Model, &items, &questions, &d.RawOutput); err != nil {
		return Draft{}, err
	}
	t, err := time.Parse(timestampLayout, createdAt)
	if err != nil {
		return Draft{}, fmt.Errorf("parsing created_at: %w", err)
	}
	d.CreatedAt = t
	if err := json.Unmarshal([]byte(items), &d.Items); err != nil {
		return Draft{}, fmt.Errorf("decoding items for draft %s: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(questions), &d.Questions); err != nil {
		return Draft{}, fmt.Errorf("decoding questions for draft %s: %w", d.ID, err)
	}
	return d, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// --- Writing samples ---

func (s *Store) SaveSample(sm Sample) error {
	contentType := sm.ContentType
	if contentType == "" {
		contentType = "text"
	}
	_, err := s.db.Exec(`
		INSERT INTO writing_samples (id, created_at, source, content_type, raw, content, normalized)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sm.ID, sm.CreatedAt.UTC().Format(timestampLayout), sm.Source, contentType,
		sm.Raw, sm.Content, boolToInt(sm.Normalized),
	)
	return err
}

func (s *Store) GetSample(id string) (Sample, error) {
	row := s.db.QueryRow(`
		SELECT id, created_at, source, content_type, raw, content, normalized
		FROM writing_samples WHERE id = ?`, id)
	sm, err := scanSample(row)
	if err == sql.ErrNoRows {
		return Sample{}, ErrNotFound
	}
	return sm, err
}

// ListSamples returns samples newest first. When normalizedOnly is set,
// samples still waiting for the ingest worker are skipped.
func (s *Store) ListSamples(limit int, normalizedOnly bool) ([]Sample, error) {
	query := `SELECT id, created_at, source, content_type, raw, content, normalized FROM writing_samples`
	if normalizedOnly {
		query += ` WHERE normalized = 1`
	}
	query += ` ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Sample
	for rows.Next() {
		sm, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, sm)
	}
	return results, rows.Err()
}

// UpdateSampleContent stores normalized plain text for a sample.
func (s *Store) UpdateSampleContent(id, content string) error {
	res, err := s.db.Exec(`UPDATE writing_samples SET content = ?, normalized = 1 WHERE id = ?`, content, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *Store) DeleteSample(id string) error {
	res, err := s.db.Exec(`DELETE FROM writing_samples WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func scanSample(sc scanner) (Sample, error) {
	var sm Sample
	var createdAt string
	var normalized int
	if err := sc.Scan(&sm.ID, &createdAt, &sm.Source, &sm.ContentType, &sm.Raw, &sm.Content, &normalized); err != nil {
		return Sample{}, err
	}
	t, err := time.Parse(timestampLayout, createdAt)
	if err != nil {
		return Sample{}, fmt.Errorf("parsing created_at: %w", err)
	}
	sm.CreatedAt = t
	sm.Normalized = normalized == 1
	return sm, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Key/value ---

// Get returns the value stored under key. ok is false when the key has never
// been set.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set replaces the value stored under key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// --- Jobs ---

func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]interface{}, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, now); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		runAfter := now.Add(backoff)
		_, err = tx.Exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}

	if err != nil {
		return err
	}

	return tx.Commit()
}

// ResetRunningJobs returns jobs left in the running state by a previous
// process to the pending queue. Call once before starting workers.
func (s *Store) ResetRunningJobs() (int, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'pending', updated_at = ? WHERE status = 'running'`, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountJobs returns the number of jobs in the given status.
func (s *Store) CountJobs(status string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE status = ?`, status).Scan(&n)
	return n, err
}
