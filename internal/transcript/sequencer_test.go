package transcript

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osteo-training-backend/internal/store/storetest"
)

func TestAppendAssignsSequentialTurns(t *testing.T) {
	ctx := context.Background()
	s := NewSequencer(storetest.New())

	m1, err := s.Append(ctx, "sess-1", "u1", RolePatient, "Bonjour")
	require.NoError(t, err)
	m2, err := s.Append(ctx, "sess-1", "u1", RoleStudent, "Bonjour, asseyez-vous")
	require.NoError(t, err)
	m3, err := s.Append(ctx, "sess-1", "u1", RolePatient, "Merci")
	require.NoError(t, err)

	assert.Equal(t, 1, m1.TurnIndex)
	assert.Equal(t, 2, m2.TurnIndex)
	assert.Equal(t, 3, m3.TurnIndex)

	// A second session numbers independently.
	other, err := s.Append(ctx, "sess-2", "u1", RoleStudent, "Hello")
	require.NoError(t, err)
	assert.Equal(t, 1, other.TurnIndex)
}

func TestHasMessages(t *testing.T) {
	ctx := context.Background()
	s := NewSequencer(storetest.New())

	has, err := s.HasMessages(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = s.Append(ctx, "sess-1", "u1", RoleStudent, "Hi")
	require.NoError(t, err)

	has, err = s.HasMessages(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestHistoryWindow(t *testing.T) {
	ctx := context.Background()
	s := NewSequencer(storetest.New())

	for i := 1; i <= 10; i++ {
		_, err := s.Append(ctx, "sess-1", "u1", RoleStudent, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	full, err := s.History(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, full, 10)
	assert.Equal(t, 1, full[0].TurnIndex)
	assert.Equal(t, 10, full[9].TurnIndex)

	recent, err := s.History(ctx, "sess-1", 4)
	require.NoError(t, err)
	require.Len(t, recent, 4)
	// Most recent four, back in chronological order.
	assert.Equal(t, 7, recent[0].TurnIndex)
	assert.Equal(t, 10, recent[3].TurnIndex)

	wide, err := s.History(ctx, "sess-1", 50)
	require.NoError(t, err)
	assert.Len(t, wide, 10)
}
