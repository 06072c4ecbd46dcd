package jobcache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"courtside/internal/config"
	"courtside/internal/jobs"
	"courtside/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
	lockRetryDelay          = 25 * time.Millisecond
	timeLayout              = "2006-01-02T15:04:05.000000000Z07:00"
)

// ErrSchemaMismatch indicates the cache was written by an incompatible version.
var ErrSchemaMismatch = errors.New("job cache schema version mismatch")

// Cache is the on-disk job snapshot.
type Cache struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time

	// mu serializes writers in this process; lock serializes processes.
	mu   sync.Mutex
	lock *flock.Flock
}

// Open creates or connects to the cache at path.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	cache := &Cache{
		db:     db,
		path:   path,
		lock:   flock.New(filepath.Join(filepath.Dir(path), "jobs.lock")),
		logger: logging.NewComponentLogger(logger, "jobcache"),
		now:    time.Now,
	}
	if err := cache.withWriteLock(ctx, func() error { return cache.initSchema(ctx) }); err != nil {
		_ = db.Close()
		return nil, err
	}
	return cache, nil
}

// OpenFromConfig opens the cache configured under paths.state_dir.
func OpenFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Cache, error) {
	return Open(ctx, cfg.CachePath(), logger)
}

// Path returns the database location.
func (c *Cache) Path() string { return c.path }

// Close releases the database handle.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Cache) initSchema(ctx context.Context) error {
	var tableExists int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return c.createSchema(ctx)
	}

	var version int
	if err := c.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: cache has version %d, expected %d (delete %s)", ErrSchemaMismatch, version, schemaVersion, c.path)
	}
	return nil
}

func (c *Cache) createSchema(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// upsertSQL refuses to overwrite terminal rows with a different status.
const upsertSQL = `
INSERT INTO jobs (id, source_name, status, artifact_ref, created_at, processing_seconds, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    source_name = CASE WHEN jobs.source_name = '' THEN excluded.source_name ELSE jobs.source_name END,
    status = excluded.status,
    artifact_ref = excluded.artifact_ref,
    processing_seconds = excluded.processing_seconds,
    updated_at = excluded.updated_at
WHERE jobs.status NOT IN ('completed', 'failed')`

// Save upserts the given jobs in one transaction.
func (c *Cache) Save(ctx context.Context, list ...jobs.Job) error {
	if len(list) == 0 {
		return nil
	}
	return c.withWriteLock(ctx, func() error {
		return retryOnBusy(ctx, func() error {
			tx, err := c.db.BeginTx(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = tx.Rollback() }()

			stmt, err := tx.PrepareContext(ctx, upsertSQL)
			if err != nil {
				return err
			}
			defer stmt.Close()

			updatedAt := c.now().UTC().Format(timeLayout)
			for _, job := range list {
				job = job.Normalize()
				if job.ID == "" {
					continue
				}
				if _, err := stmt.ExecContext(ctx,
					job.ID,
					job.SourceName,
					string(job.Status),
					nullString(job.ArtifactRef),
					job.CreatedAt.UTC().Format(timeLayout),
					nullFloat(job.ProcessingSeconds),
					updatedAt,
				); err != nil {
					return fmt.Errorf("upsert job %s: %w", job.ID, err)
				}
			}
			return tx.Commit()
		})
	})
}

// Load returns every cached job, most recently created first.
func (c *Cache) Load(ctx context.Context) ([]jobs.Job, error) {
	var out []jobs.Job
	err := retryOnBusy(ctx, func() error {
		out = out[:0]
		rows, err := c.db.QueryContext(ctx,
			`SELECT id, source_name, status, artifact_ref, created_at, processing_seconds
			 FROM jobs ORDER BY created_at DESC, id DESC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			job, err := c.scanJob(rows)
			if err != nil {
				c.logger.Warn("skipping unreadable cached job", logging.Error(err))
				continue
			}
			out = append(out, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("load cached jobs: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (c *Cache) scanJob(row rowScanner) (jobs.Job, error) {
	var (
		id, sourceName, status, createdAt string
		artifactRef                       sql.NullString
		processing                        sql.NullFloat64
	)
	if err := row.Scan(&id, &sourceName, &status, &artifactRef, &createdAt, &processing); err != nil {
		return jobs.Job{}, err
	}
	parsedStatus, err := jobs.ParseStatus(status)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("job %s: %w", id, err)
	}
	created, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("job %s: parse created_at: %w", id, err)
	}
	job := jobs.Job{
		ID:          id,
		SourceName:  sourceName,
		Status:      parsedStatus,
		ArtifactRef: artifactRef.String,
		CreatedAt:   created,
	}
	if processing.Valid {
		seconds := processing.Float64
		job.ProcessingSeconds = &seconds
	}
	return job.Normalize(), nil
}

// Prune removes terminal jobs created before cutoff and reports how many
// rows were deleted.
func (c *Cache) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := c.withWriteLock(ctx, func() error {
		return retryOnBusy(ctx, func() error {
			res, err := c.db.ExecContext(ctx,
				"DELETE FROM jobs WHERE status IN ('completed', 'failed') AND created_at < ?",
				cutoff.UTC().Format(timeLayout),
			)
			if err != nil {
				return err
			}
			removed, err = res.RowsAffected()
			return err
		})
	})
	if err != nil {
		return 0, fmt.Errorf("prune job cache: %w", err)
	}
	return removed, nil
}

// Observer returns a store observer that persists every applied change.
// Failures are logged; the cache never blocks job tracking.
func (c *Cache) Observer(ctx context.Context) func(jobs.Change) {
	return func(change jobs.Change) {
		if err := c.Save(ctx, change.Current); err != nil {
			logging.WarnWithContext(c.logger, "job cache write failed", "cache_write_failed",
				logging.String(logging.FieldJobID, change.Current.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "cached listing may be stale until the next sync"),
			)
		}
	}
}

func (c *Cache) withWriteLock(ctx context.Context, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	locked, err := c.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire cache lock: %w", err)
	}
	if !locked {
		return errors.New("acquire cache lock: not acquired")
	}
	defer func() {
		if err := c.lock.Unlock(); err != nil {
			c.logger.Warn("release cache lock failed", logging.Error(err))
		}
	}()
	return fn()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := range busyRetryAttempts {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, busyRetryMaxBackoff)
	}
	return lastErr
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}
