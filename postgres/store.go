// Package postgres provides an EventStore backed by a PostgreSQL table
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kode4food/dispatch"
)

type (
	// Config addresses the database and table used by a Store
	Config struct {
		URL   string
		Table string
	}

	// Store is an EventStore that keeps events in a single table. Rows are
	// ordered by a serial sequence, and every query is answered in SQL.
	// Timestamps are kept at microsecond precision
	Store struct {
		pool      *pgxpool.Pool
		table     string
		ownsPool  bool
		selectSQL string
	}
)

const (
	DefaultTable = "dispatch_events"

	uniqueViolation = "23505"
)

var (
	// ErrURLRequired indicates an empty connection string
	ErrURLRequired = errors.New("postgres connection url is required")

	// ErrInvalidTable indicates a table name that is not a plain identifier
	ErrInvalidTable = errors.New("invalid table name")

	tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

var _ dispatch.EventStore = (*Store)(nil)

// DefaultConfig returns a Config using the default table
func DefaultConfig() Config {
	return Config{Table: DefaultTable}
}

// Open connects to the configured database, creates the event table if it
// is missing, and returns a Store using it. The Store closes the pool when
// it is closed
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, ErrURLRequired
	}
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	s, err := New(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s.ownsPool = true
	return s, nil
}

// New returns a Store using an existing pool. It does not create the table
func New(pool *pgxpool.Pool, table string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return &Store{
		pool:      pool,
		table:     table,
		selectSQL: "SELECT id, name, at, data FROM " + table,
	}, nil
}

// EnsureSchema creates the event table and its indexes if they are missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			seq  BIGSERIAL PRIMARY KEY,
			id   TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			at   TIMESTAMPTZ NOT NULL,
			data JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ` + s.table + `_name_idx ON ` +
			s.table + ` (name)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Close releases the pool if the Store opened it
func (s *Store) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}

// Append stores evs as one transaction
func (s *Store) Append(
	ctx context.Context, evs ...*dispatch.Event,
) ([]*dispatch.Event, error) {
	if len(evs) == 0 {
		return evs, nil
	}
	if err := dispatch.CheckBatch(evs); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insert := "INSERT INTO " + s.table +
		" (id, name, at, data) VALUES ($1, $2, $3, $4::jsonb)"
	for _, ev := range evs {
		_, err := tx.Exec(ctx, insert,
			string(ev.ID), string(ev.Type), ev.Timestamp, payloadOf(ev),
		)
		if err != nil {
			return nil, duplicateOr(ev, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return evs, nil
}

// Query returns the stored events matching q, in insertion order
func (s *Store) Query(
	ctx context.Context, q dispatch.EventQuery,
) ([]*dispatch.Event, error) {
	where, args, ok := buildWhere(q)
	if !ok {
		return []*dispatch.Event{}, nil
	}

	rows, err := s.pool.Query(ctx, s.selectSQL+where+buildWindow(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []*dispatch.Event{}
	for rows.Next() {
		var (
			id, name string
			at       time.Time
			data     []byte
		)
		if err := rows.Scan(&id, &name, &at, &data); err != nil {
			return nil, err
		}
		res = append(res, &dispatch.Event{
			Timestamp: at,
			ID:        dispatch.ID(id),
			Type:      dispatch.EventType(name),
			Data:      json.RawMessage(data),
		})
	}
	return res, rows.Err()
}

// buildWhere translates the query properties into a WHERE clause. It
// reports false when a property can never match
func buildWhere(q dispatch.EventQuery) (string, []any, bool) {
	var clauses []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	for _, key := range sortedKeys(q.Properties) {
		want := q.Properties[key]
		switch key {
		case dispatch.PropertyID:
			s, ok := textOf(want)
			if !ok {
				return "", nil, false
			}
			clauses = append(clauses, "id = "+next(s))
		case dispatch.PropertyName:
			s, ok := textOf(want)
			if !ok {
				return "", nil, false
			}
			clauses = append(clauses, "name = "+next(s))
		case dispatch.PropertyWhen:
			t, ok := timeOf(want)
			if !ok {
				return "", nil, false
			}
			clauses = append(clauses, "at = "+next(t))
		default:
			data, err := json.Marshal(want)
			if err != nil {
				return "", nil, false
			}
			clauses = append(clauses,
				"data -> "+next(key)+"::text = "+next(string(data))+"::jsonb",
			)
		}
	}

	if len(clauses) == 0 {
		return "", nil, true
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, true
}

func buildWindow(q dispatch.EventQuery) string {
	var sb strings.Builder
	sb.WriteString(" ORDER BY seq")
	if q.Take != nil && *q.Take >= 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(*q.Take))
	}
	if q.Skip != nil && *q.Skip > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(*q.Skip))
	}
	return sb.String()
}

func duplicateOr(ev *dispatch.Event, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &dispatch.DuplicateEventError{ID: ev.ID}
	}
	return fmt.Errorf("insert event %s: %w", ev.ID, err)
}

func payloadOf(ev *dispatch.Event) string {
	if len(ev.Data) == 0 {
		return "null"
	}
	return string(ev.Data)
}
