package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/lib/pq"

	"connection/internal/connection/models"
	"connection/pkg/platform/sentinel"
)

const projectionColumns = `id, registry_id, person_id, first_name, last_name, submission_date,
	programme_name, membership_type, membership_start_date, membership_end_date,
	designated_body_code, tcs_designated_body_code, programme_owner,
	connection_status, exception_reason, updated_at`

var sortColumns = map[string]string{
	models.SortSubmissionDate: "submission_date",
	models.SortLastName:       "lower(last_name)",
	models.SortRegistryID:     "registry_id",
	models.SortProgrammeName:  "lower(programme_name)",
	models.SortEndDate:        "membership_end_date",
}

// Postgres persists one view in its own table. All four views share the
// projection shape; only membership differs.
type Postgres struct {
	db    *sql.DB
	view  models.View
	table string
	clock func() time.Time
}

// PostgresOption configures a Postgres view store.
type PostgresOption func(*Postgres)

// WithClock sets the clock used for updated_at stamps.
func WithClock(clock func() time.Time) PostgresOption {
	return func(p *Postgres) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// TableName is the default table for v.
func TableName(v models.View) string {
	return "connection_view_" + string(v)
}

// NewPostgres constructs a view store over table.
func NewPostgres(db *sql.DB, view models.View, table string, opts ...PostgresOption) *Postgres {
	s := &Postgres{
		db:    db,
		view:  view,
		table: pq.QuoteIdentifier(table),
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Postgres) View() models.View { return s.view }

// EnsureSchema creates the view table if missing.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.createTableSQL(true)); err != nil {
		return fmt.Errorf("ensure %s view schema: %w", s.view, err)
	}
	return nil
}

// Recreate drops and recreates the table in one transaction.
func (s *Postgres) Recreate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recreate %s view: %w", s.view, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+s.table); err != nil {
		return fmt.Errorf("drop %s view: %w", s.view, err)
	}
	if _, err := tx.ExecContext(ctx, s.createTableSQL(false)); err != nil {
		return fmt.Errorf("create %s view: %w", s.view, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recreate %s view: %w", s.view, err)
	}
	return nil
}

func (s *Postgres) createTableSQL(ifNotExists bool) string {
	guard := ""
	if ifNotExists {
		guard = "IF NOT EXISTS "
	}
	return `CREATE TABLE ` + guard + s.table + ` (
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
		connection_status TEXT NOT NULL DEFAULT 'No',
		exception_reason TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (registry_id, person_id)
	)`
}

// FindByKey returns the projection for key, or sentinel.ErrNotFound.
func (s *Postgres) FindByKey(ctx context.Context, key models.NaturalKey) (*models.Projection, error) {
	query := `SELECT ` + projectionColumns + ` FROM ` + s.table + ` WHERE registry_id = $1 AND person_id = $2`
	row := s.db.QueryRowContext(ctx, query, key.RegistryID, key.PersonID)
	p, err := s.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find %s projection: %w", s.view, err)
	}
	return p, nil
}

// Upsert inserts p or overwrites the row with the same natural key. The
// conflict path leaves id untouched so the view-local identifier survives.
func (s *Postgres) Upsert(ctx context.Context, p models.Projection) error {
	key := p.Key()
	if err := key.Validate(); err != nil {
		return err
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.clock()
	}
	query := `
		INSERT INTO ` + s.table + ` (` + projectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
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
			connection_status = EXCLUDED.connection_status,
			exception_reason = EXCLUDED.exception_reason,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New(), key.RegistryID, key.PersonID, p.FirstName, p.LastName, nullDate(p.SubmissionDate),
		p.ProgrammeName, p.MembershipType, nullDate(p.MembershipStartDate), nullDate(p.MembershipEndDate),
		p.DesignatedBodyCode, p.TCSDesignatedBodyCode, p.ProgrammeOwner,
		p.ConnectionStatus, p.ExceptionReason, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert %s projection: %w", s.view, err)
	}
	return nil
}

// DeleteByKey removes the row for key; absent rows are not an error.
func (s *Postgres) DeleteByKey(ctx context.Context, key models.NaturalKey) error {
	query := `DELETE FROM ` + s.table + ` WHERE registry_id = $1 AND person_id = $2`
	if _, err := s.db.ExecContext(ctx, query, key.RegistryID, key.PersonID); err != nil {
		return fmt.Errorf("delete %s projection: %w", s.view, err)
	}
	return nil
}

// Search runs a filtered, sorted, paged read.
func (s *Postgres) Search(ctx context.Context, criteria models.Criteria) (models.Page, error) {
	c := criteria.Normalize()
	where, args := buildWhere(c)

	var total int64
	countQuery := `SELECT count(*) FROM ` + s.table + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return models.Page{}, fmt.Errorf("count %s view: %w", s.view, err)
	}

	direction, nulls := "DESC", "NULLS LAST"
	if c.SortOrder == models.SortAsc {
		direction, nulls = "ASC", "NULLS FIRST"
	}
	orderBy := fmt.Sprintf(" ORDER BY %s %s %s, registry_id, person_id", sortColumns[c.SortField], direction, nulls)
	limit := fmt.Sprintf(" LIMIT %d OFFSET %d", c.PageSize, c.Page*c.PageSize)

	rows, err := s.db.QueryContext(ctx, `SELECT `+projectionColumns+` FROM `+s.table+where+orderBy+limit, args...)
	if err != nil {
		return models.Page{}, fmt.Errorf("search %s view: %w", s.view, err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]models.Projection, 0, c.PageSize)
	for rows.Next() {
		p, err := s.scan(rows)
		if err != nil {
			return models.Page{}, fmt.Errorf("scan %s projection: %w", s.view, err)
		}
		records = append(records, *p)
	}
	if err := rows.Err(); err != nil {
		return models.Page{}, fmt.Errorf("iterate %s view: %w", s.view, err)
	}

	return models.Page{
		Records:      records,
		TotalResults: total,
		TotalPages:   models.TotalPagesFor(total, c.PageSize),
	}, nil
}

func buildWhere(c models.Criteria) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if c.FreeText != "" {
		p := arg("%" + escapeLike(c.FreeText) + "%")
		clauses = append(clauses, fmt.Sprintf(
			"((first_name || ' ' || last_name) ILIKE %[1]s OR registry_id ILIKE %[1]s OR person_id ILIKE %[1]s)", p))
	}
	if len(c.DesignatedBodyCodes) > 0 {
		codes := make([]string, 0, len(c.DesignatedBodyCodes))
		for _, code := range c.DesignatedBodyCodes {
			codes = append(codes, strings.ToUpper(strings.TrimSpace(code)))
		}
		p := arg(pq.Array(codes))
		clauses = append(clauses, fmt.Sprintf(
			"(upper(designated_body_code) = ANY(%[1]s::text[]) OR upper(tcs_designated_body_code) = ANY(%[1]s::text[]))", p))
	}
	if c.ProgrammeName != "" {
		clauses = append(clauses, "lower(programme_name) = lower("+arg(c.ProgrammeName)+")")
	}
	if c.SubmissionFrom != nil {
		clauses = append(clauses, "submission_date >= "+arg(models.Date(*c.SubmissionFrom)))
	}
	if c.SubmissionTo != nil {
		clauses = append(clauses, "submission_date <= "+arg(models.Date(*c.SubmissionTo)))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Postgres) scan(row rowScanner) (*models.Projection, error) {
	var (
		p                            models.Projection
		submission, memStart, memEnd sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.RegistryID, &p.PersonID, &p.FirstName, &p.LastName, &submission,
		&p.ProgrammeName, &p.MembershipType, &memStart, &memEnd,
		&p.DesignatedBodyCode, &p.TCSDesignatedBodyCode, &p.ProgrammeOwner,
		&p.ConnectionStatus, &p.ExceptionReason, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.View = s.view
	p.SubmissionDate = fromNullTime(submission)
	p.MembershipStartDate = fromNullTime(memStart)
	p.MembershipEndDate = fromNullTime(memEnd)
	return &p, nil
}

func nullDate(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: models.Date(*t), Valid: true}
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	d := models.Date(t.Time)
	return &d
}
