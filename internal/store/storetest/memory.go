// Package storetest provides an in-memory store.Gateway for tests. It
// enforces the same unique constraints the migrations declare so tests see
// the production idempotency backstops.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"osteo-training-backend/internal/apperr"
	"osteo-training-backend/internal/store"
)

type Memory struct {
	mu     sync.Mutex
	tables map[string][]store.Row
	unique map[string][][]string
	nextID int
}

// New returns a memory gateway with the schema's unique constraints
// pre-registered.
func New() *Memory {
	m := &Memory{
		tables: map[string][]store.Row{},
		unique: map[string][][]string{},
	}
	m.AddUnique("profiles", "user_id")
	m.AddUnique("student_program", "user_id")
	m.AddUnique("sessions", "user_id", "session_number")
	m.AddUnique("messages", "session_id", "turn_index")
	m.AddUnique("feedback", "session_id")
	m.AddUnique("badges", "user_id", "badge_code")
	m.AddUnique("questionnaire", "session_id")
	return m
}

func (m *Memory) AddUnique(table string, cols ...string) {
	m.unique[table] = append(m.unique[table], cols)
}

func (m *Memory) Select(_ context.Context, table string, columns []string, q store.Query) ([]store.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []store.Row
	for _, r := range m.tables[table] {
		if matchesQuery(r, q) {
			out = append(out, cloneRow(r, columns))
		}
	}
	if q.Order != nil {
		col, desc := q.Order.Col, q.Order.Desc
		sort.SliceStable(out, func(i, j int) bool {
			c := compare(out[i][col], out[j][col])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) SelectOne(ctx context.Context, table string, columns []string, q store.Query) (store.Row, error) {
	q.Limit = 1
	rows, err := m.Select(ctx, table, columns, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (m *Memory) Count(ctx context.Context, table string, q store.Query) (int, error) {
	q.Order = nil
	q.Limit = 0
	rows, err := m.Select(ctx, table, nil, q)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (m *Memory) Insert(_ context.Context, table string, rows []store.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range rows {
		if err := m.checkUnique(table, r, -1); err != nil {
			return err
		}
	}
	for _, r := range rows {
		cp := cloneRow(r, nil)
		if _, ok := cp["id"]; !ok {
			m.nextID++
			cp["id"] = fmt.Sprintf("row-%d", m.nextID)
		}
		m.tables[table] = append(m.tables[table], cp)
	}
	return nil
}

func (m *Memory) Update(_ context.Context, table string, patch store.Row, filters []Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var affected int64
	for _, r := range m.tables[table] {
		if !matchesAll(r, filters) {
			continue
		}
		for k, v := range patch {
			r[k] = v
		}
		affected++
	}
	return affected, nil
}

func (m *Memory) Upsert(_ context.Context, table string, row store.Row, conflictCols []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.tables[table] {
		same := true
		for _, c := range conflictCols {
			if compare(r[c], row[c]) != 0 {
				same = false
				break
			}
		}
		if same {
			for k, v := range row {
				r[k] = v
			}
			return nil
		}
	}
	cp := cloneRow(row, nil)
	if _, ok := cp["id"]; !ok {
		m.nextID++
		cp["id"] = fmt.Sprintf("row-%d", m.nextID)
	}
	m.tables[table] = append(m.tables[table], cp)
	return nil
}

// Filter aliases keep the Update signature identical to store.Gateway.
type Filter = store.Filter

func (m *Memory) checkUnique(table string, row store.Row, skip int) error {
	for _, cols := range m.unique[table] {
		for i, existing := range m.tables[table] {
			if i == skip {
				continue
			}
			same := true
			for _, c := range cols {
				if compare(existing[c], row[c]) != 0 {
					same = false
					break
				}
			}
			if same {
				err := fmt.Errorf("%w: %s(%v)", store.ErrUniqueViolation, table, cols)
				return apperr.Wrap(apperr.KindStoreFailure, table+" insert failed", err)
			}
		}
	}
	return nil
}

func matchesQuery(r store.Row, q store.Query) bool {
	if !matchesAll(r, q.Filters) {
		return false
	}
	if len(q.AnyOf) == 0 {
		return true
	}
	for _, f := range q.AnyOf {
		if matches(r, f) {
			return true
		}
	}
	return false
}

func matchesAll(r store.Row, filters []store.Filter) bool {
	for _, f := range filters {
		if !matches(r, f) {
			return false
		}
	}
	return true
}

func matches(r store.Row, f store.Filter) bool {
	v, ok := r[f.Col]
	if !ok {
		return false
	}
	switch f.Op {
	case store.OpEq:
		return compare(v, f.Val) == 0
	case store.OpGt:
		return compare(v, f.Val) > 0
	case store.OpGte:
		return compare(v, f.Val) >= 0
	case store.OpLt:
		return compare(v, f.Val) < 0
	case store.OpLte:
		return compare(v, f.Val) <= 0
	case store.OpIn:
		vals, _ := f.Val.([]any)
		for _, candidate := range vals {
			if compare(v, candidate) == 0 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func compare(a, b any) int {
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}
	if an, aok := toFloat(a); aok {
		if bn, bok := toFloat(b); bok {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			default:
				return 0
			}
		}
	}
	as, bs := store.AsString(a), store.AsString(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

func cloneRow(r store.Row, columns []string) store.Row {
	cp := make(store.Row, len(r))
	if len(columns) == 0 {
		for k, v := range r {
			cp[k] = v
		}
		return cp
	}
	for _, c := range columns {
		if v, ok := r[c]; ok {
			cp[c] = v
		}
	}
	return cp
}
