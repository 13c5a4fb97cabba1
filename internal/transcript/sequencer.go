// Package transcript owns the append-only chat history of a session and
// the strictly increasing turn numbering that orders it.
package transcript

import (
	"context"

	"github.com/google/uuid"

	"osteo-training-backend/internal/apperr"
	"osteo-training-backend/internal/store"
)

type Role string

const (
	RoleStudent Role = "student"
	RolePatient Role = "patient"
)

type Message struct {
	ID        string
	SessionID string
	UserID    string
	TurnIndex int
	Role      Role
	Content   string
}

func messageFromRow(r store.Row) (*Message, error) {
	m := &Message{
		ID:        store.AsString(r["id"]),
		SessionID: store.AsString(r["session_id"]),
		UserID:    store.AsString(r["user_id"]),
		TurnIndex: store.AsInt(r["turn_index"]),
		Role:      Role(store.AsString(r["role"])),
		Content:   store.AsString(r["content"]),
	}
	switch m.Role {
	case RoleStudent, RolePatient:
	default:
		return nil, apperr.Newf(apperr.KindStoreFailure, "message row has invalid role %q", m.Role)
	}
	return m, nil
}

// Sequencer assigns turn indices and reads ordered history. No application
// locking: per-session requests are serialized by the client, and the
// unique constraint on (session_id, turn_index) makes a concurrent
// duplicate fail loudly instead of corrupting the order.
type Sequencer struct {
	store store.Gateway
}

func NewSequencer(gw store.Gateway) *Sequencer {
	return &Sequencer{store: gw}
}

// NextTurnIndex returns 1 for an empty transcript, else max+1.
func (s *Sequencer) NextTurnIndex(ctx context.Context, sessionID string) (int, error) {
	row, err := s.store.SelectOne(ctx, "messages", []string{"turn_index"}, store.Query{
		Filters: []store.Filter{store.Eq("session_id", sessionID)},
		Order:   &store.Order{Col: "turn_index", Desc: true},
	})
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 1, nil
	}
	return store.AsInt(row["turn_index"]) + 1, nil
}

// HasMessages reports whether the session transcript is non-empty.
func (s *Sequencer) HasMessages(ctx context.Context, sessionID string) (bool, error) {
	row, err := s.store.SelectOne(ctx, "messages", []string{"id"}, store.Query{
		Filters: []store.Filter{store.Eq("session_id", sessionID)},
	})
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// Append stores content at the next turn index.
func (s *Sequencer) Append(ctx context.Context, sessionID, userID string, role Role, content string) (*Message, error) {
	turn, err := s.NextTurnIndex(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	m := &Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    userID,
		TurnIndex: turn,
		Role:      role,
		Content:   content,
	}
	err = s.store.Insert(ctx, "messages", []store.Row{{
		"id":         m.ID,
		"session_id": m.SessionID,
		"user_id":    m.UserID,
		"turn_index": m.TurnIndex,
		"role":       string(m.Role),
		"content":    m.Content,
	}})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// History returns up to limit most recent messages in chronological order.
// limit <= 0 returns the whole transcript.
func (s *Sequencer) History(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		return s.fetch(ctx, sessionID, store.Order{Col: "turn_index"}, 0)
	}
	recent, err := s.fetch(ctx, sessionID, store.Order{Col: "turn_index", Desc: true}, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

func (s *Sequencer) fetch(ctx context.Context, sessionID string, order store.Order, limit int) ([]*Message, error) {
	rows, err := s.store.Select(ctx, "messages", nil, store.Query{
		Filters: []store.Filter{store.Eq("session_id", sessionID)},
		Order:   &order,
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Message, 0, len(rows))
	for _, r := range rows {
		m, err := messageFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
