package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"osteo-training-backend/internal/apperr"
)

// ErrUniqueViolation marks store failures caused by a unique constraint.
// Callers that rely on constraints as an idempotency backstop (badge awards,
// concurrent seeding) check for it with IsUniqueViolation.
var ErrUniqueViolation = errors.New("unique constraint violation")

func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Select(ctx context.Context, table string, columns []string, q Query) ([]Row, error) {
	query, args := buildSelect(table, columns, q, false)
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStoreErr(table+" select failed", err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, wrapStoreErr(table+" select scan failed", err)
	}
	return out, nil
}

func (p *Postgres) SelectOne(ctx context.Context, table string, columns []string, q Query) (Row, error) {
	q.Limit = 1
	rows, err := p.Select(ctx, table, columns, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (p *Postgres) Count(ctx context.Context, table string, q Query) (int, error) {
	q.Order = nil
	q.Limit = 0
	query, args := buildSelect(table, nil, q, true)
	var n int
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, wrapStoreErr(table+" count failed", err)
	}
	return n, nil
}

func (p *Postgres) Insert(ctx context.Context, table string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	cols := sortedColumns(rows[0])
	var (
		args   []any
		values []string
	)
	n := 1
	for _, r := range rows {
		ph := make([]string, len(cols))
		for i, c := range cols {
			ph[i] = fmt.Sprintf("$%d", n)
			args = append(args, r[c])
			n++
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s",
		pq.QuoteIdentifier(table), quoteJoin(cols), strings.Join(values, ", "),
	)
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return wrapStoreErr(table+" insert failed", err)
	}
	return nil
}

func (p *Postgres) Update(ctx context.Context, table string, patch Row, filters []Filter) (int64, error) {
	if len(patch) == 0 {
		return 0, nil
	}
	cols := sortedColumns(patch)
	var (
		args []any
		sets []string
	)
	n := 1
	for _, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(c), n))
		args = append(args, patch[c])
		n++
	}
	query := fmt.Sprintf("UPDATE %s SET %s", pq.QuoteIdentifier(table), strings.Join(sets, ", "))
	if where := buildWhere(filters, nil, &n, &args); where != "" {
		query += " WHERE " + where
	}
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapStoreErr(table+" update failed", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

func (p *Postgres) Upsert(ctx context.Context, table string, row Row, conflictCols []string) error {
	cols := sortedColumns(row)
	var args []any
	ph := make([]string, len(cols))
	for i, c := range cols {
		ph[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, row[c])
	}
	conflict := map[string]bool{}
	for _, c := range conflictCols {
		conflict[c] = true
	}
	var sets []string
	for _, c := range cols {
		if conflict[c] {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", pq.QuoteIdentifier(c), pq.QuoteIdentifier(c)))
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		pq.QuoteIdentifier(table), quoteJoin(cols), strings.Join(ph, ", "),
		quoteJoin(conflictCols), strings.Join(sets, ", "),
	)
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return wrapStoreErr(table+" upsert failed", err)
	}
	return nil
}

var opSQL = map[Op]string{
	OpEq:  "=",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

func buildSelect(table string, columns []string, q Query, count bool) (string, []any) {
	sel := "*"
	if count {
		sel = "COUNT(*)"
	} else if len(columns) > 0 {
		sel = quoteJoin(columns)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", sel, pq.QuoteIdentifier(table))

	var args []any
	n := 1
	if where := buildWhere(q.Filters, q.AnyOf, &n, &args); where != "" {
		query += " WHERE " + where
	}
	if q.Order != nil {
		dir := "ASC"
		if q.Order.Desc {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s", pq.QuoteIdentifier(q.Order.Col), dir)
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return query, args
}

func buildWhere(filters, anyOf []Filter, n *int, args *[]any) string {
	var conds []string
	for _, f := range filters {
		conds = append(conds, filterSQL(f, n, args))
	}
	if len(anyOf) > 0 {
		var ors []string
		for _, f := range anyOf {
			ors = append(ors, filterSQL(f, n, args))
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	return strings.Join(conds, " AND ")
}

func filterSQL(f Filter, n *int, args *[]any) string {
	if f.Op == OpIn {
		vals, _ := f.Val.([]any)
		cond := fmt.Sprintf("%s = ANY($%d)", pq.QuoteIdentifier(f.Col), *n)
		*args = append(*args, pq.Array(vals))
		*n++
		return cond
	}
	op, ok := opSQL[f.Op]
	if !ok {
		op = "="
	}
	cond := fmt.Sprintf("%s %s $%d", pq.QuoteIdentifier(f.Col), op, *n)
	*args = append(*args, f.Val)
	*n++
	return cond
}

func quoteJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

func sortedColumns(r Row) []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				cp := make([]byte, len(b))
				copy(cp, b)
				r[c] = cp
				continue
			}
			r[c] = vals[i]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func wrapStoreErr(msg string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		err = fmt.Errorf("%w: %v", ErrUniqueViolation, err)
	}
	return apperr.Wrap(apperr.KindStoreFailure, msg, err)
}
