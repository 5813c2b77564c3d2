// Package entdriver implements storage.Driver on ent's SQL dialect layer.
// It is database-agnostic and is embedded by the sqlite and postgres
// drivers, which supply the connection.
package entdriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"

	"github.com/papercomputeco/cohort/pkg/checkpoint"
	"github.com/papercomputeco/cohort/pkg/storage"
	"github.com/papercomputeco/cohort/pkg/storage/ent/migrate"
)

var checkpointColumns = []string{"step", "id", "source", "owner", "writes", "parents", "created_at"}

// EntDriver provides storage operations over an ent SQL driver.
type EntDriver struct {
	drv *entsql.Driver

	isUniqueViolation func(error) bool
}

// Option configures an EntDriver.
type Option func(*EntDriver)

// WithUniqueViolation sets the check that maps a driver error to
// storage.ErrStepConflict. Without it ent's generic constraint check is used.
func WithUniqueViolation(fn func(error) bool) Option {
	return func(d *EntDriver) {
		d.isUniqueViolation = fn
	}
}

// Open runs ent's auto-migration on drv and returns the driver.
func Open(ctx context.Context, drv *entsql.Driver, opts ...Option) (*EntDriver, error) {
	if err := migrate.Create(ctx, drv); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	d := &EntDriver{
		drv:               drv,
		isUniqueViolation: sqlgraph.IsUniqueConstraintError,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// DB returns the underlying database handle.
func (d *EntDriver) DB() *sql.DB {
	return d.drv.DB()
}

func (d *EntDriver) builder() *entsql.DialectBuilder {
	return entsql.Dialect(d.drv.Dialect())
}

// Append inserts cps in one transaction. A taken (thread, step) pair
// rolls the whole batch back.
func (d *EntDriver) Append(ctx context.Context, threadID string, cps ...*checkpoint.Checkpoint) error {
	if len(cps) == 0 {
		return nil
	}

	tx, err := d.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, cp := range cps {
		if cp == nil {
			return storage.ErrNilCheckpoint
		}
		writes, err := json.Marshal(cp.Writes)
		if err != nil {
			return fmt.Errorf("encoding writes: %w", err)
		}
		parents, err := json.Marshal(cp.Parents)
		if err != nil {
			return fmt.Errorf("encoding parents: %w", err)
		}

		query, args := d.builder().
			Insert(migrate.CheckpointsTable.Name).
			Columns(append([]string{"thread_id"}, checkpointColumns...)...).
			Values(threadID, cp.Step, cp.ID, cp.Source, cp.Owner, string(writes), string(parents), cp.CreatedAt.UnixNano()).
			Query()

		if err := tx.Exec(ctx, query, args, nil); err != nil {
			if d.isUniqueViolation(err) {
				return fmt.Errorf("%w: thread %s step %d", storage.ErrStepConflict, threadID, cp.Step)
			}
			return fmt.Errorf("inserting checkpoint: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing checkpoints: %w", err)
	}
	return nil
}

// List returns threadID's checkpoints in storage order.
func (d *EntDriver) List(ctx context.Context, threadID string) ([]*checkpoint.Checkpoint, error) {
	query, args := d.builder().
		Select(checkpointColumns...).
		From(entsql.Table(migrate.CheckpointsTable.Name)).
		Where(entsql.EQ("thread_id", threadID)).
		Query()

	var rows entsql.Rows
	if err := d.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("querying checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*checkpoint.Checkpoint
	for rows.Next() {
		var (
			cp        checkpoint.Checkpoint
			writes    string
			parents   string
			createdAt int64
		)
		if err := rows.Scan(&cp.Step, &cp.ID, &cp.Source, &cp.Owner, &writes, &parents, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning checkpoint: %w", err)
		}
		if err := json.Unmarshal([]byte(writes), &cp.Writes); err != nil {
			return nil, fmt.Errorf("decoding writes of step %d: %w", cp.Step, err)
		}
		if err := json.Unmarshal([]byte(parents), &cp.Parents); err != nil {
			return nil, fmt.Errorf("decoding parents of step %d: %w", cp.Step, err)
		}
		cp.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, &cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating checkpoints: %w", err)
	}
	return out, nil
}

// PutSummary appends a summary row; the newest row per user wins.
func (d *EntDriver) PutSummary(ctx context.Context, s *storage.Summary) error {
	if s == nil {
		return errors.New("cannot store nil summary")
	}

	query, args := d.builder().
		Insert(migrate.SummariesTable.Name).
		Columns("user_id", "thread_id", "body", "created_at").
		Values(s.UserID, s.ThreadID, s.Text, s.CreatedAt.UnixNano()).
		Query()

	if err := d.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("inserting summary: %w", err)
	}
	return nil
}

// LatestSummary returns userID's newest summary or storage.ErrNotFound.
func (d *EntDriver) LatestSummary(ctx context.Context, userID string) (*storage.Summary, error) {
	query, args := d.builder().
		Select("user_id", "thread_id", "body", "created_at").
		From(entsql.Table(migrate.SummariesTable.Name)).
		Where(entsql.EQ("user_id", userID)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Limit(1).
		Query()

	var rows entsql.Rows
	if err := d.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("querying summary: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying summary: %w", err)
		}
		return nil, fmt.Errorf("summary for %s: %w", userID, storage.ErrNotFound)
	}

	var (
		s         storage.Summary
		createdAt int64
	)
	if err := rows.Scan(&s.UserID, &s.ThreadID, &s.Text, &createdAt); err != nil {
		return nil, fmt.Errorf("scanning summary: %w", err)
	}
	s.CreatedAt = time.Unix(0, createdAt).UTC()
	return &s, nil
}

// Close closes the database.
func (d *EntDriver) Close() error {
	return d.drv.Close()
}

var _ storage.Driver = (*EntDriver)(nil)
