// Package postgres implements remote.Structured on a PostgreSQL database
// reached through pgx's database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"

	"hackhub/internal/remote"
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store runs table operations with identifiers checked against a strict
// pattern and every value bound as a parameter.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Connect prepares a pool without touching the network. Reachability is left
// to the caller's probe.
func Connect(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres.Connect")
	}
	return &Store{db: db}, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Select(ctx context.Context, table string, q remote.Query) ([]remote.Row, error) {
	var b builder
	if err := b.ident(table); err != nil {
		return nil, err
	}
	b.sql.WriteString("SELECT * FROM ")
	b.sql.WriteString(quote(table))
	if err := b.where(q.Where); err != nil {
		return nil, err
	}
	if q.OrderBy != "" {
		if err := b.ident(q.OrderBy); err != nil {
			return nil, err
		}
		b.sql.WriteString(" ORDER BY ")
		b.sql.WriteString(quote(q.OrderBy))
		if q.Desc {
			b.sql.WriteString(" DESC")
		} else {
			b.sql.WriteString(" ASC")
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b.sql, " LIMIT %d", q.Limit)
	}
	rows, err := s.db.QueryContext(ctx, b.sql.String(), b.args...)
	if err != nil {
		return nil, errors.Wrapf(err, "postgres.Select %s", table)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, errors.Wrapf(err, "postgres.Select %s scan", table)
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	var b builder
	if err := b.ident(table); err != nil {
		return nil, err
	}
	if len(row) == 0 {
		return nil, errors.New("postgres.Insert: empty row")
	}
	cols := sortedKeys(row)
	quoted := make([]string, 0, len(cols))
	holders := make([]string, 0, len(cols))
	for _, c := range cols {
		if err := b.ident(c); err != nil {
			return nil, err
		}
		quoted = append(quoted, quote(c))
		holders = append(holders, b.bind(row[c]))
	}
	fmt.Fprintf(&b.sql, "INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		quote(table), strings.Join(quoted, ", "), strings.Join(holders, ", "))
	rows, err := s.db.QueryContext(ctx, b.sql.String(), b.args...)
	if err != nil {
		return nil, errors.Wrapf(err, "postgres.Insert %s", table)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, errors.Wrapf(err, "postgres.Insert %s scan", table)
	}
	if len(out) == 0 {
		return nil, errors.Errorf("postgres.Insert %s: no row returned", table)
	}
	return out[0], nil
}

func (s *Store) Update(ctx context.Context, table string, where []remote.Cond, patch remote.Row) (int64, error) {
	var b builder
	if err := b.ident(table); err != nil {
		return 0, err
	}
	if len(patch) == 0 {
		return 0, errors.New("postgres.Update: empty patch")
	}
	sets := make([]string, 0, len(patch))
	for _, c := range sortedKeys(patch) {
		if err := b.ident(c); err != nil {
			return 0, err
		}
		sets = append(sets, quote(c)+" = "+b.bind(patch[c]))
	}
	fmt.Fprintf(&b.sql, "UPDATE %s SET %s", quote(table), strings.Join(sets, ", "))
	if err := b.where(where); err != nil {
		return 0, err
	}
	return s.exec(ctx, "postgres.Update "+table, &b)
}

func (s *Store) Delete(ctx context.Context, table string, where []remote.Cond) (int64, error) {
	var b builder
	if err := b.ident(table); err != nil {
		return 0, err
	}
	if len(where) == 0 {
		return 0, errors.New("postgres.Delete: refusing to delete without a predicate")
	}
	b.sql.WriteString("DELETE FROM ")
	b.sql.WriteString(quote(table))
	if err := b.where(where); err != nil {
		return 0, err
	}
	return s.exec(ctx, "postgres.Delete "+table, &b)
}

func (s *Store) Count(ctx context.Context, table string, where []remote.Cond) (int64, error) {
	var b builder
	if err := b.ident(table); err != nil {
		return 0, err
	}
	b.sql.WriteString("SELECT COUNT(*) FROM ")
	b.sql.WriteString(quote(table))
	if err := b.where(where); err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, b.sql.String(), b.args...).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "postgres.Count %s", table)
	}
	return n, nil
}

func (s *Store) exec(ctx context.Context, op string, b *builder) (int64, error) {
	res, err := s.db.ExecContext(ctx, b.sql.String(), b.args...)
	if err != nil {
		return 0, errors.Wrap(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, op)
	}
	return n, nil
}

type builder struct {
	sql  strings.Builder
	args []any
}

func (b *builder) ident(name string) error {
	if !identPattern.MatchString(name) {
		return errors.Errorf("postgres: invalid identifier %q", name)
	}
	return nil
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *builder) where(conds []remote.Cond) error {
	for i, c := range conds {
		if err := b.ident(c.Column); err != nil {
			return err
		}
		if i == 0 {
			b.sql.WriteString(" WHERE ")
		} else {
			b.sql.WriteString(" AND ")
		}
		col := quote(c.Column)
		switch c.Op {
		case remote.OpEq, "":
			if c.Value == nil {
				b.sql.WriteString(col + " IS NULL")
				continue
			}
			b.sql.WriteString(col + " = " + b.bind(c.Value))
		case remote.OpNeq:
			b.sql.WriteString(col + " <> " + b.bind(c.Value))
		case remote.OpLt:
			b.sql.WriteString(col + " < " + b.bind(c.Value))
		case remote.OpGt:
			b.sql.WriteString(col + " > " + b.bind(c.Value))
		case remote.OpIn:
			values := expand(c.Value)
			if len(values) == 0 {
				b.sql.WriteString("FALSE")
				continue
			}
			holders := make([]string, 0, len(values))
			for _, v := range values {
				holders = append(holders, b.bind(v))
			}
			b.sql.WriteString(col + " IN (" + strings.Join(holders, ", ") + ")")
		default:
			return errors.Errorf("postgres: unsupported operator %q", c.Op)
		}
	}
	return nil
}

func expand(v any) []any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out = append(out, rv.Index(i).Interface())
	}
	return out
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func sortedKeys(row remote.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func scanRows(rows *sql.Rows) ([]remote.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []remote.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(remote.Row, len(cols))
		for i, c := range cols {
			if raw, ok := values[i].([]byte); ok {
				row[c] = string(raw)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
