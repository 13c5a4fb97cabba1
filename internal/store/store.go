// Package store implements the row gateway over the relational backing
// store. Domain packages speak in tables, filters and generic rows here,
// and convert rows into typed records at their own boundary.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Row is one result row keyed by column name.
type Row map[string]any

type Op string

const (
	OpEq  Op = "eq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
)

type Filter struct {
	Col string
	Op  Op
	Val any
}

func Eq(col string, val any) Filter  { return Filter{Col: col, Op: OpEq, Val: val} }
func Gt(col string, val any) Filter  { return Filter{Col: col, Op: OpGt, Val: val} }
func Gte(col string, val any) Filter { return Filter{Col: col, Op: OpGte, Val: val} }
func Lt(col string, val any) Filter  { return Filter{Col: col, Op: OpLt, Val: val} }
func Lte(col string, val any) Filter { return Filter{Col: col, Op: OpLte, Val: val} }

// In matches rows whose column equals any of vals.
func In(col string, vals []any) Filter { return Filter{Col: col, Op: OpIn, Val: vals} }

type Order struct {
	Col  string
	Desc bool
}

// Query combines ANDed filters, an optional OR group, ordering and a limit.
// AnyOf filters are OR-combined with each other and ANDed with Filters.
type Query struct {
	Filters []Filter
	AnyOf   []Filter
	Order   *Order
	Limit   int
}

// Gateway is the storage surface the rest of the backend depends on.
type Gateway interface {
	// Select returns matching rows. columns nil or empty selects all.
	Select(ctx context.Context, table string, columns []string, q Query) ([]Row, error)
	// SelectOne returns the first matching row, or nil when none match.
	SelectOne(ctx context.Context, table string, columns []string, q Query) (Row, error)
	// Count returns the number of matching rows.
	Count(ctx context.Context, table string, q Query) (int, error)
	// Insert appends rows. Unique-constraint violations surface as
	// conflict-classed store failures.
	Insert(ctx context.Context, table string, rows []Row) error
	// Update patches matching rows and reports how many were touched.
	Update(ctx context.Context, table string, patch Row, filters []Filter) (int64, error)
	// Upsert inserts or, on conflict over conflictCols, updates the row.
	Upsert(ctx context.Context, table string, row Row, conflictCols []string) error
}

// Row value coercion. Drivers hand back int64, []byte or string depending on
// the column type, so typed conversions live here instead of in every caller.

func AsString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func AsInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int32:
		return int(t)
	case int64:
		return int(t)
	case float64:
		return int(t)
	case []byte:
		n, _ := strconv.Atoi(string(t))
		return n
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

func AsBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "t" || t == "true"
	case []byte:
		s := string(t)
		return s == "t" || s == "true"
	default:
		return false
	}
}

func AsTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		ts, err := time.Parse(time.RFC3339Nano, t)
		return ts, err == nil
	case []byte:
		ts, err := time.Parse(time.RFC3339Nano, string(t))
		return ts, err == nil
	default:
		return time.Time{}, false
	}
}

// AsJSON decodes a jsonb column value into dst.
func AsJSON(v any, dst any) error {
	var raw []byte
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		raw = t
	case string:
		raw = []byte(t)
	case json.RawMessage:
		raw = t
	default:
		return fmt.Errorf("value is not json: %T", v)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
