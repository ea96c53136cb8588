package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"connection/internal/connection/master"
	"connection/internal/connection/models"
	"connection/pkg/platform/sentinel"
)

const masterColumns = `id, registry_id, person_id, first_name, last_name, submission_date,
	programme_name, membership_type, membership_start_date, membership_end_date,
	designated_body_code, tcs_designated_body_code, programme_owner,
	exception_reason, updated_at`

const cursorName = "connection_master_scan"

// Schema creates the master table. Applied by EnsureSchema on startup.
const Schema = `CREATE TABLE IF NOT EXISTS connection_master (
	id UUID PRIMARY KEY,
	registry_id TEXT NOT NULL DEFAULT '',
	person_id TEXT NOT NULL DEFAULT '',
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	submission_date DATE,
	programme_name TEXT NOT NULL DEFAULT '',
	membership_type TEXT NOT NULL DEFAULT '',
	membership_start_date DATE,
	membership_end_date DATE,
	designated_body_code TEXT NOT NULL DEFAULT '',
	tcs_designated_body_code TEXT NOT NULL DEFAULT '',
	programme_owner TEXT NOT NULL DEFAULT '',
	exception_reason TEXT,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT connection_master_natural_key UNIQUE (registry_id, person_id),
	CONSTRAINT connection_master_identity CHECK (registry_id <> '' OR person_id <> '')
);
CREATE INDEX IF NOT EXISTS connection_master_registry_idx ON connection_master (registry_id)`

// Postgres stores canonical records in connection_master using a pgx pool.
type Postgres struct {
	pool      *pgxpool.Pool
	keepAlive time.Duration
}

// PostgresOption configures the master store.
type PostgresOption func(*Postgres)

// WithCursorKeepAlive sets how long the server keeps an idle scan open
// between fetches. Exceeding it aborts the scan.
func WithCursorKeepAlive(d time.Duration) PostgresOption {
	return func(p *Postgres) {
		if d > 0 {
			p.keepAlive = d
		}
	}
}

func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) *Postgres {
	p := &Postgres{pool: pool, keepAlive: time.Minute}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// EnsureSchema applies Schema.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure master schema: %w", err)
	}
	return nil
}

func (s *Postgres) FindByKey(ctx context.Context, key models.NaturalKey) (*models.Record, error) {
	key = normalize(key)
	rows, err := s.pool.Query(ctx,
		`SELECT `+masterColumns+` FROM connection_master WHERE registry_id = $1 AND person_id = $2`,
		key.RegistryID, key.PersonID)
	if err != nil {
		return nil, fmt.Errorf("find master record: %w", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find master record: %w", err)
	}
	return rec, nil
}

func (s *Postgres) FindByRegistryID(ctx context.Context, registryID string) ([]*models.Record, error) {
	key := models.NewNaturalKey(registryID, "")
	if key.RegistryID == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+masterColumns+` FROM connection_master WHERE registry_id = $1 ORDER BY person_id`,
		key.RegistryID)
	if err != nil {
		return nil, fmt.Errorf("find master records by registry id: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("find master records by registry id: %w", err)
	}
	return recs, nil
}

// Save upserts rec. Concurrent saves for the same key are last-write-wins.
func (s *Postgres) Save(ctx context.Context, rec *models.Record) error {
	if rec == nil {
		return fmt.Errorf("master record is required")
	}
	key := rec.Key()
	if err := key.Validate(); err != nil {
		return err
	}
	rec.RegistryID, rec.PersonID = key.RegistryID, key.PersonID
	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	query := `
		INSERT INTO connection_master (` + masterColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (registry_id, person_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			submission_date = EXCLUDED.submission_date,
			programme_name = EXCLUDED.programme_name,
			membership_type = EXCLUDED.membership_type,
			membership_start_date = EXCLUDED.membership_start_date,
			membership_end_date = EXCLUDED.membership_end_date,
			designated_body_code = EXCLUDED.designated_body_code,
			tcs_designated_body_code = EXCLUDED.tcs_designated_body_code,
			programme_owner = EXCLUDED.programme_owner,
			exception_reason = EXCLUDED.exception_reason,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	err := s.pool.QueryRow(ctx, query,
		id, key.RegistryID, key.PersonID, rec.FirstName, rec.LastName, rec.SubmissionDate,
		rec.ProgrammeName, rec.MembershipType, rec.MembershipStartDate, rec.MembershipEndDate,
		rec.DesignatedBodyCode, rec.TCSDesignatedBodyCode, rec.ProgrammeOwner,
		rec.ExceptionReason, rec.UpdatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("save master record: %w", err)
	}
	return nil
}

func (s *Postgres) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM connection_master`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count master records: %w", err)
	}
	return n, nil
}

// OpenCursor declares a server-side cursor inside a read-only transaction.
// The transaction's idle timeout is the cursor keep-alive: a caller that
// waits longer than that between fetches gets an error on the next fetch.
func (s *Postgres) OpenCursor(ctx context.Context, batchSize int) (master.Cursor, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive: %w", sentinel.ErrInvalidState)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin master scan: %w", err)
	}

	keepAlive := fmt.Sprintf(`SET LOCAL idle_in_transaction_session_timeout = %d`, s.keepAlive.Milliseconds())
	if _, err := tx.Exec(ctx, keepAlive); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("set master scan keep-alive: %w", err)
	}
	declare := `DECLARE ` + cursorName + ` NO SCROLL CURSOR FOR SELECT ` + masterColumns + ` FROM connection_master ORDER BY id`
	if _, err := tx.Exec(ctx, declare); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("declare master scan: %w", err)
	}
	return &pgCursor{tx: tx, batch: batchSize}, nil
}

type pgCursor struct {
	tx     pgx.Tx
	batch  int
	closed bool
}

func (c *pgCursor) Next(ctx context.Context) ([]*models.Record, error) {
	if c.closed {
		return nil, fmt.Errorf("master scan closed: %w", sentinel.ErrInvalidState)
	}
	rows, err := c.tx.Query(ctx, fmt.Sprintf(`FETCH FORWARD %d FROM %s`, c.batch, cursorName))
	if err != nil {
		return nil, fmt.Errorf("fetch master batch: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("fetch master batch: %w", err)
	}
	return recs, nil
}

// Close releases the cursor and its transaction even when ctx is done.
func (c *pgCursor) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	ctx = context.WithoutCancel(ctx)
	// rollback drops the cursor too, so a failed CLOSE is not reported
	_, _ = c.tx.Exec(ctx, `CLOSE `+cursorName)
	if err := c.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("release master scan: %w", err)
	}
	return nil
}

func scanRecord(row pgx.CollectableRow) (*models.Record, error) {
	var rec models.Record
	err := row.Scan(
		&rec.ID, &rec.RegistryID, &rec.PersonID, &rec.FirstName, &rec.LastName, &rec.SubmissionDate,
		&rec.ProgrammeName, &rec.MembershipType, &rec.MembershipStartDate, &rec.MembershipEndDate,
		&rec.DesignatedBodyCode, &rec.TCSDesignatedBodyCode, &rec.ProgrammeOwner,
		&rec.ExceptionReason, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.SubmissionDate = asDate(rec.SubmissionDate)
	rec.MembershipStartDate = asDate(rec.MembershipStartDate)
	rec.MembershipEndDate = asDate(rec.MembershipEndDate)
	return &rec, nil
}

func asDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := models.Date(*t)
	return &d
}
