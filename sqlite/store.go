// Package sqlite provides an EventStore backed by an embedded SQLite
// database
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kode4food/dispatch"
)

type (
	// Store is an EventStore that keeps events in a single SQLite table.
	// Envelope properties and scalar payload properties are filtered in
	// SQL; any other property is matched after the rows are read
	Store struct {
		db *sql.DB
	}

	// plan is a query split into the part SQLite answers and the part
	// matched in process
	plan struct {
		where    []string
		args     []any
		residual dispatch.EventQuery
	}
)

const (
	driverName = "sqlite"

	// BusyTimeout bounds how long a writer waits on a locked database
	BusyTimeout = 5 * time.Second

	schema = `
CREATE TABLE IF NOT EXISTS events (
	seq  INTEGER PRIMARY KEY AUTOINCREMENT,
	id   TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	at   TEXT NOT NULL,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS events_name_idx ON events (name);
`
)

var (
	// ErrPathRequired indicates an empty database path
	ErrPathRequired = errors.New("storage path is required")
)

var _ dispatch.EventStore = (*Store)(nil)

// Open opens (creating if needed) a SQLite-backed Store at path
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrPathRequired
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		filepath.Clean(path), BusyTimeout.Milliseconds(),
	)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open event db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, ev := range evs {
		var exists int
		err := tx.QueryRowContext(ctx,
			"SELECT 1 FROM events WHERE id = ?", string(ev.ID),
		).Scan(&exists)
		switch {
		case err == nil:
			return nil, &dispatch.DuplicateEventError{ID: ev.ID}
		case !errors.Is(err, sql.ErrNoRows):
			return nil, err
		}
	}

	for _, ev := range evs {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO events (id, name, at, data) VALUES (?, ?, ?, ?)",
			string(ev.ID), string(ev.Type),
			ev.Timestamp.UTC().Format(time.RFC3339Nano), payloadOf(ev),
		)
		if err != nil {
			return nil, fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return evs, nil
}

// Query returns the stored events matching q, in insertion order
func (s *Store) Query(
	ctx context.Context, q dispatch.EventQuery,
) ([]*dispatch.Event, error) {
	p := planQuery(q)
	query := "SELECT id, name, at, data FROM events"
	if len(p.where) > 0 {
		query += " WHERE " + strings.Join(p.where, " AND ")
	}
	query += " ORDER BY seq"
	inSQL := len(p.residual.Properties) == 0
	if inSQL {
		query += window(q)
	}

	rows, err := s.db.QueryContext(ctx, query, p.args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	matched := []*dispatch.Event{}
	for rows.Next() {
		var id, name, at, data string
		if err := rows.Scan(&id, &name, &at, &data); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("decode event %s: %w", id, err)
		}
		ev := &dispatch.Event{
			Timestamp: ts,
			ID:        dispatch.ID(id),
			Type:      dispatch.EventType(name),
			Data:      json.RawMessage(data),
		}
		if inSQL || p.residual.Matches(ev) {
			matched = append(matched, ev)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if inSQL {
		return matched, nil
	}
	start, end := q.Window(len(matched))
	return matched[start:end], nil
}

func planQuery(q dispatch.EventQuery) *plan {
	p := &plan{
		residual: dispatch.EventQuery{Properties: map[string]any{}},
	}
	for key, want := range q.Properties {
		switch key {
		case dispatch.PropertyID:
			if s, ok := textOf(want); ok {
				p.add("id = ?", s)
				continue
			}
		case dispatch.PropertyName:
			if s, ok := textOf(want); ok {
				p.add("name = ?", s)
				continue
			}
		case dispatch.PropertyWhen:
		default:
			if p.addPayload(key, want) {
				continue
			}
		}
		p.residual.Properties[key] = want
	}
	return p
}

func (p *plan) add(clause string, args ...any) {
	p.where = append(p.where, clause)
	p.args = append(p.args, args...)
}

func (p *plan) addPayload(key string, want any) bool {
	path := `$."` + strings.ReplaceAll(key, `"`, `\"`) + `"`
	switch w := want.(type) {
	case string:
		p.add("json_type(data, ?) = 'text' AND json_extract(data, ?) = ?",
			path, path, w,
		)
	case int:
		p.add(
			"json_type(data, ?) IN ('integer', 'real') AND "+
				"json_extract(data, ?) = ?",
			path, path, int64(w),
		)
	case int64:
		p.add(
			"json_type(data, ?) IN ('integer', 'real') AND "+
				"json_extract(data, ?) = ?",
			path, path, w,
		)
	case float64:
		p.add(
			"json_type(data, ?) IN ('integer', 'real') AND "+
				"json_extract(data, ?) = ?",
			path, path, w,
		)
	default:
		return false
	}
	return true
}

func window(q dispatch.EventQuery) string {
	var sb strings.Builder
	take := -1
	if q.Take != nil && *q.Take >= 0 {
		take = *q.Take
	}
	sb.WriteString(" LIMIT " + strconv.Itoa(take))
	if q.Skip != nil && *q.Skip > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(*q.Skip))
	}
	return sb.String()
}

func textOf(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case dispatch.ID:
		return string(v), true
	case dispatch.EventType:
		return string(v), true
	default:
		return "", false
	}
}

func payloadOf(ev *dispatch.Event) string {
	if len(ev.Data) == 0 {
		return "null"
	}
	return string(ev.Data)
}
