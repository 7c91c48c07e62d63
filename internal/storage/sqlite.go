package storage

import (
	"database/sql"
	"embed"
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

// Store wraps a SQLite database with methods for advice jobs, background jobs,
// and trend documents.
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
		dsn = filepath.Join(dataDir, "sulbi.db")
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

// DB exposes the underlying connection for components that query the same
// database directly, such as the vector search store.
func (s *Store) DB() *sql.DB {
	return s.db
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

// --- Advice jobs ---

const adviceJobColumns = `id, district_id, options_json, question, status, attempts, max_attempts,
	run_after, result_json, failure_reason, cancel_requested, created_at, updated_at`

func (s *Store) CreateAdviceJob(job AdviceJob) error {
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
		INSERT INTO advice_jobs (id, district_id, options_json, question, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?, ?)`,
		job.ID, job.DistrictID, job.OptionsJSON, job.Question, maxAttempts, runAfter, now, now,
	)
	return err
}

func (s *Store) GetAdviceJob(id string) (AdviceJob, error) {
	row := s.db.QueryRow(`SELECT `+adviceJobColumns+` FROM advice_jobs WHERE id = ?`, id)
	return scanAdviceJob(row)
}

func scanAdviceJob(row *sql.Row) (AdviceJob, error) {
	var j AdviceJob
	var runAfter, createdAt, updatedAt string
	var resultJSON, failureReason sql.NullString
	err := row.Scan(
		&j.ID, &j.DistrictID, &j.OptionsJSON, &j.Question, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &resultJSON, &failureReason, &j.CancelRequested, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return AdviceJob{}, ErrNotFound
	}
	if err != nil {
		return AdviceJob{}, err
	}
	j.ResultJSON = resultJSON.String
	j.FailureReason = failureReason.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return AdviceJob{}, fmt.Errorf("parsing run_after: %w", err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return AdviceJob{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return AdviceJob{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return j, nil
}

// ClaimNextAdviceJob atomically picks the oldest runnable advice job and marks
// it active. Returns nil when no job is due.
func (s *Store) ClaimNextAdviceJob() (*AdviceJob, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j AdviceJob
	var runAfter, createdAt, updatedAt string
	var resultJSON, failureReason sql.NullString
	err = tx.QueryRow(`
		SELECT `+adviceJobColumns+`
		FROM advice_jobs
		WHERE status IN ('queued', 'retrying') AND run_after <= ?
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`, now,
	).Scan(
		&j.ID, &j.DistrictID, &j.OptionsJSON, &j.Question, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &resultJSON, &failureReason, &j.CancelRequested, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next advice job: %w", err)
	}

	res, err := tx.Exec(`UPDATE advice_jobs SET status = 'active', updated_at = ? WHERE id = ? AND status IN ('queued', 'retrying')`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating advice job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated advice job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = StatusActive
	j.ResultJSON = resultJSON.String
	j.FailureReason = failureReason.String
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

func (s *Store) CompleteAdviceJob(id, resultJSON string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE advice_jobs SET status = 'completed', result_json = ?, updated_at = ? WHERE id = ?`,
		resultJSON, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailAdviceJob records a failed attempt. The job is rescheduled with
// exponential backoff until max_attempts is reached, then marked failed.
// Returns true when the job went terminal.
func (s *Store) FailAdviceJob(id, reason string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM advice_jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	attempts++

	terminal := attempts >= maxAttempts
	if terminal {
		_, err = tx.Exec(`UPDATE advice_jobs SET status = 'failed', attempts = ?, failure_reason = ?, updated_at = ? WHERE id = ?`,
			attempts, reason, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		runAfter := now.Add(backoff)
		_, err = tx.Exec(`UPDATE advice_jobs SET status = 'retrying', attempts = ?, failure_reason = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, reason, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}

	if err != nil {
		return false, err
	}

	return terminal, tx.Commit()
}

// FailAdviceJobPermanently marks a job failed immediately, skipping
// remaining retries. Used for errors retrying cannot fix, such as an
// unknown district or an honored cancel request.
func (s *Store) FailAdviceJobPermanently(id, reason string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE advice_jobs SET status = 'failed', failure_reason = ?, updated_at = ?
		WHERE id = ? AND status NOT IN ('completed', 'failed')`, reason, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RequestCancel flags a job for cancellation. Terminal jobs are left alone;
// the worker honors the flag at its next checkpoint.
func (s *Store) RequestCancel(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE advice_jobs SET cancel_requested = 1, updated_at = ?
		WHERE id = ? AND status NOT IN ('completed', 'failed')`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish missing from already terminal.
		var exists int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM advice_jobs WHERE id = ?`, id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func (s *Store) CancelRequested(id string) (bool, error) {
	var flag bool
	err := s.db.QueryRow(`SELECT cancel_requested FROM advice_jobs WHERE id = ?`, id).Scan(&flag)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	return flag, err
}

// PruneTerminalAdviceJobs deletes completed and failed jobs older than ttl.
func (s *Store) PruneTerminalAdviceJobs(ttl time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-ttl).Format(time.RFC3339)
	res, err := s.db.Exec(`
		DELETE FROM advice_jobs WHERE status IN ('completed', 'failed') AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Background jobs ---

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
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
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

// --- Trend docs ---

// SaveTrendDocIfNew inserts a trend doc unless its external_id is already
// known. Returns true when the doc was inserted.
func (s *Store) SaveTrendDocIfNew(doc TrendDoc) (bool, error) {
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := s.db.Exec(`
		INSERT INTO trend_docs (id, source, external_id, area, url, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO NOTHING`,
		doc.ID, doc.Source, doc.ExternalID, doc.Area, doc.URL, doc.Content, doc.Embedding,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) GetTrendDoc(id string) (TrendDoc, error) {
	var d TrendDoc
	var createdAt string
	var url sql.NullString
	err := s.db.QueryRow(`
		SELECT id, source, external_id, area, url, content, embedding, created_at
		FROM trend_docs WHERE id = ?`, id,
	).Scan(&d.ID, &d.Source, &d.ExternalID, &d.Area, &url, &d.Content, &d.Embedding, &createdAt)
	if err == sql.ErrNoRows {
		return TrendDoc{}, ErrNotFound
	}
	if err != nil {
		return TrendDoc{}, err
	}
	d.URL = url.String
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return TrendDoc{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return d, nil
}

func (s *Store) UpdateTrendDocEmbedding(id string, embedding []byte) error {
	res, err := s.db.Exec(`UPDATE trend_docs SET embedding = ? WHERE id = ?`, embedding, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEmbeddedTrendDocs returns all docs that already have an embedding.
func (s *Store) ListEmbeddedTrendDocs() ([]TrendDoc, error) {
	rows, err := s.db.Query(`
		SELECT id, source, external_id, area, url, content, embedding, created_at
		FROM trend_docs WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrendDocs(rows)
}

func (s *Store) ListTrendDocs(limit int) ([]TrendDoc, error) {
	rows, err := s.db.Query(`
		SELECT id, source, external_id, area, url, content, embedding, created_at
		FROM trend_docs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrendDocs(rows)
}

func collectTrendDocs(rows *sql.Rows) ([]TrendDoc, error) {
	var results []TrendDoc
	for rows.Next() {
		var d TrendDoc
		var createdAt string
		var url sql.NullString
		if err := rows.Scan(&d.ID, &d.Source, &d.ExternalID, &d.Area, &url, &d.Content, &d.Embedding, &createdAt); err != nil {
			return nil, err
		}
		d.URL = url.String
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		d.CreatedAt = t
		results = append(results, d)
	}
	return results, rows.Err()
}
