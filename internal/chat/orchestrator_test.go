package chat

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osteo-training-backend/internal/apperr"
	"osteo-training-backend/internal/auth"
	"osteo-training-backend/internal/feedback"
	"osteo-training-backend/internal/llm"
	"osteo-training-backend/internal/platform/logger"
	"osteo-training-backend/internal/progression"
	"osteo-training-backend/internal/store"
	"osteo-training-backend/internal/store/storetest"
	"osteo-training-backend/internal/transcript"
)

const evalJSON = `{
	"language": "fr",
	"student_facing": {
		"strengths": ["Accueil chaleureux", "Questions pertinentes", "Bonne synthèse"],
		"areas_to_improve": ["Laisser plus de silences", "Reformuler davantage", "Clarifier le plan"],
		"reflective_question": "Qu'avez-vous ressenti face à l'inquiétude du patient ?"
	},
	"internal_scores": {"empathy": 3, "structure": 4, "alliance": 3},
	"skill_indicators": {
		"active_listening": true,
		"reformulation": false,
		"emotional_validation": true,
		"open_questions": true,
		"structure_clarity": false
	},
	"kpis": {}
}`

type fixture struct {
	mem          *storetest.Memory
	engine       *progression.Engine
	seq          *transcript.Sequencer
	mock         *llm.Mock
	orchestrator *Orchestrator
	gate         *feedback.Gate
}

func newFixture() *fixture {
	mem := storetest.New()
	log := logger.NewNop()
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	engine := progression.NewEngine(mem, log, rand.New(rand.NewSource(21)), func() time.Time { return now })
	seq := transcript.NewSequencer(mem)
	mock := &llm.Mock{
		TextFunc: func(_, _, prompt string) (string, error) {
			if strings.Contains(prompt, "HISTORIQUE:") {
				return "Oui, surtout le matin.", nil
			}
			return "Bonjour docteur, j'ai mal au cou.", nil
		},
		StructuredFunc: func(_, _, _ string, _ *llm.Schema) (json.RawMessage, error) {
			return json.RawMessage(evalJSON), nil
		},
	}
	return &fixture{
		mem:          mem,
		engine:       engine,
		seq:          seq,
		mock:         mock,
		orchestrator: NewOrchestrator(log, engine, seq, mock, "chat-model", 30),
		gate:         feedback.NewGate(mem, log, mock, engine, seq, "eval-model"),
	}
}

func profile(userID string) *auth.Profile {
	return &auth.Profile{UserID: userID, Role: auth.RoleStudent, PreferredLanguage: "fr"}
}

// forceOpening pins patient_opening_starts so the opening-message path is
// deterministic regardless of the seeding RNG.
func forceOpening(t *testing.T, mem *storetest.Memory, sessionID string, starts bool) {
	t.Helper()
	_, err := mem.Update(context.Background(), "sessions",
		store.Row{"patient_opening_starts": starts},
		[]store.Filter{store.Eq("id", sessionID)},
	)
	require.NoError(t, err)
}

func TestSendTurnWithPatientOpening(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p := profile("u1")

	s, err := f.engine.ActiveSession(ctx, p.UserID)
	require.NoError(t, err)
	forceOpening(t, f.mem, s.ID, true)

	result, err := f.orchestrator.SendTurn(ctx, p, s.ID, "Bonjour, installez-vous.")
	require.NoError(t, err)
	assert.Equal(t, "Oui, surtout le matin.", result.PatientMessage)
	assert.Equal(t, 1, result.SessionNumber)
	assert.Equal(t, "fr", result.Language)

	history, err := f.seq.History(ctx, s.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, transcript.RolePatient, history[0].Role)
	assert.Equal(t, transcript.RoleStudent, history[1].Role)
	assert.Equal(t, transcript.RolePatient, history[2].Role)
	for i, m := range history {
		assert.Equal(t, i+1, m.TurnIndex)
	}

	// The opening is generated exactly once.
	_, err = f.orchestrator.SendTurn(ctx, p, s.ID, "Depuis quand avez-vous mal ?")
	require.NoError(t, err)
	history, err = f.seq.History(ctx, s.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, transcript.RoleStudent, history[3].Role)
	assert.Equal(t, transcript.RolePatient, history[4].Role)
}

func TestSendTurnWithoutPatientOpening(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p := profile("u1")

	s, err := f.engine.ActiveSession(ctx, p.UserID)
	require.NoError(t, err)
	forceOpening(t, f.mem, s.ID, false)

	_, err = f.orchestrator.SendTurn(ctx, p, s.ID, "Bonjour, qu'est-ce qui vous amène ?")
	require.NoError(t, err)

	history, err := f.seq.History(ctx, s.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, transcript.RoleStudent, history[0].Role)
	assert.Equal(t, transcript.RolePatient, history[1].Role)
}

func TestSendTurnStartsSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p := profile("u1")

	s, err := f.engine.ActiveSession(ctx, p.UserID)
	require.NoError(t, err)
	require.Equal(t, progression.StatusAvailable, s.Status)

	_, err = f.orchestrator.SendTurn(ctx, p, s.ID, "Bonjour")
	require.NoError(t, err)

	reloaded, err := f.engine.SessionByID(ctx, p.UserID, s.ID)
	require.NoError(t, err)
	assert.Equal(t, progression.StatusInProgress, reloaded.Status)
	assert.NotNil(t, reloaded.StartedAt)
}

func TestSendTurnGeneratorDown(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.mock.TextFunc = func(_, _, _ string) (string, error) {
		return "", &llm.ErrUnavailable{Reason: "provider error"}
	}
	p := profile("u1")

	s, err := f.engine.ActiveSession(ctx, p.UserID)
	require.NoError(t, err)
	forceOpening(t, f.mem, s.ID, false)

	_, err = f.orchestrator.SendTurn(ctx, p, s.ID, "Bonjour")
	assert.Equal(t, apperr.KindUpstreamUnavailable, apperr.KindOf(err))
}

func TestSendTurnForeignSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	s, err := f.engine.ActiveSession(ctx, "owner")
	require.NoError(t, err)

	_, err = f.orchestrator.SendTurn(ctx, profile("intruder"), s.ID, "Bonjour")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

// TestFullSessionFlow drives one session end to end: chat, end, feedback,
// and the unlock of the next curriculum slot.
func TestFullSessionFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p := profile("u1")

	s, err := f.engine.ActiveSession(ctx, p.UserID)
	require.NoError(t, err)
	forceOpening(t, f.mem, s.ID, true)

	_, err = f.orchestrator.SendTurn(ctx, p, s.ID, "Bonjour, installez-vous.")
	require.NoError(t, err)

	ended, err := f.orchestrator.EndSession(ctx, p, s.ID)
	require.NoError(t, err)
	assert.Equal(t, progression.StatusCompleted, ended.Status)

	// Ending again is a no-op.
	_, err = f.orchestrator.EndSession(ctx, p, s.ID)
	require.NoError(t, err)

	badges, err := f.engine.BadgeCodes(ctx, p.UserID)
	require.NoError(t, err)
	assert.Contains(t, badges, "MILESTONE_SESSION_1")

	// Ending never generates feedback on its own.
	_, err = f.gate.BySession(ctx, s.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	fb, err := f.gate.RequestFeedback(ctx, p, ended)
	require.NoError(t, err)
	assert.Equal(t, 3, fb.InternalScores["empathy"])

	next, err := f.engine.ActiveSession(ctx, p.UserID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, 2, next.Number)
	assert.Equal(t, progression.StatusAvailable, next.Status)
}
