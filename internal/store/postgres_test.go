package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSelect_FiltersOrderLimit(t *testing.T) {
	q := Query{
		Filters: []Filter{
			Eq("user_id", "u1"),
			Gte("ended_at", "2026-01-05"),
			Lt("ended_at", "2026-01-12"),
		},
		Order: &Order{Col: "session_number", Desc: true},
		Limit: 5,
	}
	query, args := buildSelect("sessions", []string{"id", "status"}, q, false)

	assert.Equal(t,
		`SELECT "id", "status" FROM "sessions" WHERE "user_id" = $1 AND "ended_at" >= $2 AND "ended_at" < $3 ORDER BY "session_number" DESC LIMIT 5`,
		query)
	require.Len(t, args, 3)
	assert.Equal(t, "u1", args[0])
}

func TestBuildSelect_OrGroup(t *testing.T) {
	q := Query{
		Filters: []Filter{Eq("user_id", "u1")},
		AnyOf: []Filter{
			Eq("status", "available"),
			Eq("status", "in_progress"),
		},
	}
	query, args := buildSelect("sessions", nil, q, false)

	assert.Equal(t,
		`SELECT * FROM "sessions" WHERE "user_id" = $1 AND ("status" = $2 OR "status" = $3)`,
		query)
	assert.Len(t, args, 3)
}

func TestBuildSelect_Count(t *testing.T) {
	query, args := buildSelect("sessions", nil, Query{Filters: []Filter{Eq("status", "completed")}}, true)
	assert.Equal(t, `SELECT COUNT(*) FROM "sessions" WHERE "status" = $1`, query)
	assert.Len(t, args, 1)
}

func TestBuildSelect_InFilter(t *testing.T) {
	q := Query{Filters: []Filter{In("session_id", []any{"a", "b"})}}
	query, args := buildSelect("feedback", nil, q, false)
	assert.Equal(t, `SELECT * FROM "feedback" WHERE "session_id" = ANY($1)`, query)
	assert.Len(t, args, 1)
}

func TestAsHelpers(t *testing.T) {
	assert.Equal(t, "abc", AsString([]byte("abc")))
	assert.Equal(t, 7, AsInt(int64(7)))
	assert.Equal(t, 7, AsInt([]byte("7")))
	assert.True(t, AsBool(true))
	assert.False(t, AsBool(nil))

	var dst map[string]int
	require.NoError(t, AsJSON([]byte(`{"empathy":4}`), &dst))
	assert.Equal(t, 4, dst["empathy"])
}
