package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

func Open(ctx context.Context, cfg config.Config, log zerolog.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	ctx2, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(ctx2); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	return &DB{Pool: pool, log: log}, nil
}

func (d *DB) Close() { d.Pool.Close() }

// Migrate applies pending schema migrations from sourceURL (e.g. file://migrations).
func Migrate(dsn, sourceURL string) error {
	m, err := migrate.New(sourceURL, dsn)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

type Repository struct {
	db  *DB
	log zerolog.Logger

	mu    sync.Mutex
	locks map[int64]*pgxpool.Conn
}

func NewRepository(d *DB, log zerolog.Logger) *Repository {
	return &Repository{db: d, log: log, locks: map[int64]*pgxpool.Conn{}}
}

// TryAdvisoryLock takes a session-level advisory lock. The connection holding it is pinned until
// AdvisoryUnlock so that the unlock runs in the same session.
func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.locks[key]; held {
		return false, nil
	}
	conn, err := r.db.Pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		conn.Release()
		return false, err
	}
	if !ok {
		conn.Release()
		return false, nil
	}
	r.locks[key] = conn
	return true, nil
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
	r.mu.Lock()
	conn, held := r.locks[key]
	delete(r.locks, key)
	r.mu.Unlock()
	if !held {
		return errors.New("advisory lock not held")
	}
	defer conn.Release()
	var ok bool
	err := conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
	if !ok && err == nil {
		return errors.New("advisory unlock returned false")
	}
	return err
}

func (r *Repository) AppendRecords(ctx context.Context, records []domain.SprintRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	const q = `INSERT INTO status_periods(sprint_id, sprint_name, issue_key, summary, status, start_at, end_at, duration_hours)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8)`
	for _, rec := range records {
		batch.Queue(q, rec.SprintID, rec.SprintName, rec.IssueKey, rec.IssueSummary, rec.Status, rec.Start, rec.End, rec.DurationHours)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert status period: %w", err)
		}
	}
	return nil
}

// Records returns the whole cumulative table in insertion order.
func (r *Repository) Records(ctx context.Context) ([]domain.SprintRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT sprint_id, sprint_name, issue_key, summary, status, start_at, end_at, duration_hours
        FROM status_periods ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.SprintRecord
	for rows.Next() {
		var rec domain.SprintRecord
		if err := rows.Scan(&rec.SprintID, &rec.SprintName, &rec.IssueKey, &rec.IssueSummary, &rec.Status, &rec.Start, &rec.End, &rec.DurationHours); err != nil {
			return nil, err
		}
		rec.Start = rec.Start.UTC()
		rec.End = rec.End.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ReplaceSummary swaps the stored summary for the given table in one transaction.
func (r *Repository) ReplaceSummary(ctx context.Context, table domain.SummaryTable) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM sprint_summary`); err != nil {
		return fmt.Errorf("clear summary: %w", err)
	}
	batch := &pgx.Batch{}
	const q = `INSERT INTO sprint_summary(position, sprint_name, averages, total) VALUES($1,$2,$3::jsonb,$4)`
	for i, row := range table.Rows {
		avg := make(map[string]float64, len(table.Columns))
		for j, col := range table.Columns {
			if j < len(row.Averages) {
				avg[col] = row.Averages[j]
			}
		}
		b, err := json.Marshal(avg)
		if err != nil {
			return err
		}
		batch.Queue(q, i, row.SprintName, string(b), row.Total)
	}
	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for range table.Rows {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert summary row: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Job runs
func (r *Repository) StartJobRun(ctx context.Context, sprints string) (int64, error) {
	const q = `INSERT INTO job_runs(started_at, sprints, success) VALUES(now(), $1, false) RETURNING id`
	var id int64
	if err := r.db.Pool.QueryRow(ctx, q, sprints).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *Repository) FinishJobRun(ctx context.Context, id int64, issuesScanned, recordsWritten int, success bool, errStr string) error {
	const q = `UPDATE job_runs SET finished_at=now(), issues_scanned=$2, records_written=$3, success=$4, error=$5 WHERE id=$1`
	_, err := r.db.Pool.Exec(ctx, q, id, issuesScanned, recordsWritten, success, errStr)
	return err
}

func (r *Repository) GetLastRun(ctx context.Context) (*domain.JobRun, error) {
	const q = `SELECT started_at, finished_at, coalesce(sprints,''),
        coalesce(issues_scanned,0), coalesce(records_written,0),
        coalesce(success,false), coalesce(error,'')
        FROM job_runs ORDER BY id DESC LIMIT 1`
	lr := &domain.JobRun{}
	err := r.db.Pool.QueryRow(ctx, q).Scan(&lr.StartedAt, &lr.FinishedAt, &lr.Sprints, &lr.IssuesScanned, &lr.RecordsWritten, &lr.Success, &lr.Error)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lr, nil
}
