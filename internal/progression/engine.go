package progression

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"osteo-training-backend/internal/apperr"
	"osteo-training-backend/internal/platform/logger"
	"osteo-training-backend/internal/store"
)

// WeeklySessionLimit caps completed sessions per UTC ISO week before a new
// session may be started.
const WeeklySessionLimit = 2

// patientAges is the candidate pool for randomized patient profiles.
var patientAges = []int{12, 15, 18, 24, 32, 41, 52, 67, 74}

// Engine drives the session state machine. Randomness and time are
// injected so seeding and week arithmetic are reproducible in tests.
type Engine struct {
	store store.Gateway
	log   *logger.Logger
	rng   *rand.Rand
	now   func() time.Time
}

func NewEngine(gw store.Gateway, log *logger.Logger, rng *rand.Rand, now func() time.Time) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store: gw,
		log:   log.With("service", "progression"),
		rng:   rng,
		now:   now,
	}
}

// EnsureProgram lazily creates the student's reorientation program: two
// "immediate" and two "delayed" session numbers drawn disjointly from 2..16.
// Idempotent; a concurrent first call loses the insert race and re-reads.
func (e *Engine) EnsureProgram(ctx context.Context, userID string) (*Program, error) {
	q := store.Query{Filters: []store.Filter{store.Eq("user_id", userID)}}
	row, err := e.store.SelectOne(ctx, "student_program", nil, q)
	if err != nil {
		return nil, err
	}
	if row != nil {
		return programFromRow(row)
	}

	perm := e.rng.Perm(SessionCount - 1) // indices over session numbers 2..16
	immediate := []int{perm[0] + 2, perm[1] + 2}
	delayed := []int{perm[2] + 2, perm[3] + 2}
	sort.Ints(immediate)
	sort.Ints(delayed)

	immediateJSON, _ := json.Marshal(immediate)
	delayedJSON, _ := json.Marshal(delayed)
	err = e.store.Insert(ctx, "student_program", []store.Row{{
		"user_id":                          userID,
		"reorientation_immediate_sessions": immediateJSON,
		"reorientation_delayed_sessions":   delayedJSON,
	}})
	if err != nil && !store.IsUniqueViolation(err) {
		return nil, err
	}

	row, err = e.store.SelectOne(ctx, "student_program", nil, q)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apperr.New(apperr.KindStoreFailure, "student program missing after creation")
	}
	return programFromRow(row)
}

// EnsureSeeded guarantees the 16 session rows exist. Only missing numbers
// are inserted, so repeated calls and crash retries never duplicate rows.
func (e *Engine) EnsureSeeded(ctx context.Context, userID string) error {
	program, err := e.EnsureProgram(ctx, userID)
	if err != nil {
		return err
	}

	rows, err := e.store.Select(ctx, "sessions", []string{"session_number"}, store.Query{
		Filters: []store.Filter{store.Eq("user_id", userID)},
	})
	if err != nil {
		return err
	}
	existing := make(map[int]bool, len(rows))
	for _, r := range rows {
		existing[store.AsInt(r["session_number"])] = true
	}
	if len(existing) == SessionCount {
		return nil
	}

	difficulties := e.difficultyChain()

	var toInsert []store.Row
	for n := 1; n <= SessionCount; n++ {
		if existing[n] {
			continue
		}
		status := StatusLocked
		if n == 1 {
			status = StatusAvailable
		}
		toInsert = append(toInsert, store.Row{
			"id":                     uuid.New().String(),
			"user_id":                userID,
			"session_number":         n,
			"status":                 string(status),
			"difficulty":             string(difficulties[n-1]),
			"reorientation":          string(program.reorientationFor(n)),
			"patient_age":            patientAges[e.rng.Intn(len(patientAges))],
			"patient_gender":         string(pick(e.rng, GenderFemale, GenderMale)),
			"patient_opening_starts": e.rng.Intn(2) == 0,
		})
	}
	if len(toInsert) == 0 {
		return nil
	}

	if err := e.store.Insert(ctx, "sessions", toInsert); err != nil {
		// Lost a seeding race: the other request inserted the same
		// numbers, which is the state we wanted.
		if store.IsUniqueViolation(err) {
			return nil
		}
		return err
	}
	e.log.Info("seeded sessions", "user_id", userID, "inserted", len(toInsert))
	return nil
}

// difficultyChain assigns session 1 L1 and every later session a difficulty
// different from its predecessor.
func (e *Engine) difficultyChain() []Difficulty {
	out := make([]Difficulty, SessionCount)
	out[0] = DifficultyL1
	for i := 1; i < SessionCount; i++ {
		var choices []Difficulty
		for _, d := range []Difficulty{DifficultyL1, DifficultyL2, DifficultyL3} {
			if d != out[i-1] {
				choices = append(choices, d)
			}
		}
		out[i] = choices[e.rng.Intn(len(choices))]
	}
	return out
}

func pick[T any](rng *rand.Rand, a, b T) T {
	if rng.Intn(2) == 0 {
		return a
	}
	return b
}

// ActiveSession seeds if needed and returns the lowest-numbered session
// that is available or in progress, or nil when all 16 are completed.
func (e *Engine) ActiveSession(ctx context.Context, userID string) (*Session, error) {
	if err := e.EnsureSeeded(ctx, userID); err != nil {
		return nil, err
	}
	row, err := e.store.SelectOne(ctx, "sessions", nil, store.Query{
		Filters: []store.Filter{store.Eq("user_id", userID)},
		AnyOf: []store.Filter{
			store.Eq("status", string(StatusAvailable)),
			store.Eq("status", string(StatusInProgress)),
		},
		Order: &store.Order{Col: "session_number"},
	})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return SessionFromRow(row)
}

// SessionByID resolves a session owned by userID. Absence and foreign
// ownership are indistinguishable to the caller.
func (e *Engine) SessionByID(ctx context.Context, userID, sessionID string) (*Session, error) {
	row, err := e.store.SelectOne(ctx, "sessions", nil, store.Query{
		Filters: []store.Filter{
			store.Eq("id", sessionID),
			store.Eq("user_id", userID),
		},
	})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apperr.New(apperr.KindNotFound, "session not found")
	}
	return SessionFromRow(row)
}

// Sessions lists all seeded sessions in curriculum order.
func (e *Engine) Sessions(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := e.store.Select(ctx, "sessions", nil, store.Query{
		Filters: []store.Filter{store.Eq("user_id", userID)},
		Order:   &store.Order{Col: "session_number"},
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Session, 0, len(rows))
	for _, r := range rows {
		s, err := SessionFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// WeekStart returns Monday 00:00 UTC of the ISO week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.AddDate(0, 0, -daysSinceMonday)
}

// WeeklyCompletedCount counts sessions completed in the current UTC ISO
// week, Monday inclusive to next Monday exclusive.
func (e *Engine) WeeklyCompletedCount(ctx context.Context, userID string) (int, error) {
	start := WeekStart(e.now())
	end := start.AddDate(0, 0, 7)
	return e.store.Count(ctx, "sessions", store.Query{
		Filters: []store.Filter{
			store.Eq("user_id", userID),
			store.Eq("status", string(StatusCompleted)),
			store.Gte("ended_at", start),
			store.Lt("ended_at", end),
		},
	})
}

// StartOrResume moves an available session to in_progress, enforcing the
// weekly cap. Resuming an in-progress session is a no-op; started_at is set
// on the first transition only.
func (e *Engine) StartOrResume(ctx context.Context, s *Session) error {
	switch s.Status {
	case StatusInProgress:
		return nil
	case StatusCompleted:
		return apperr.New(apperr.KindConflict, "session already completed")
	case StatusLocked:
		return apperr.New(apperr.KindForbidden, "session locked")
	}

	completed, err := e.WeeklyCompletedCount(ctx, s.UserID)
	if err != nil {
		return err
	}
	if completed >= WeeklySessionLimit {
		return apperr.Newf(apperr.KindRateLimited, "weekly limit reached: %d sessions per week", WeeklySessionLimit)
	}

	startedAt := e.now()
	if s.StartedAt != nil {
		startedAt = *s.StartedAt
	}
	_, err = e.store.Update(ctx, "sessions",
		store.Row{"status": string(StatusInProgress), "started_at": startedAt},
		[]store.Filter{store.Eq("id", s.ID)},
	)
	if err != nil {
		return err
	}
	s.Status = StatusInProgress
	s.StartedAt = &startedAt
	return nil
}

// Complete marks the session completed, unlocks the immediately following
// session if it is locked, and awards the milestone badge when the session
// number has one. Completing an already-completed session is a no-op.
func (e *Engine) Complete(ctx context.Context, s *Session) error {
	if s.Status == StatusCompleted {
		return nil
	}

	endedAt := e.now()
	_, err := e.store.Update(ctx, "sessions",
		store.Row{"status": string(StatusCompleted), "ended_at": endedAt},
		[]store.Filter{store.Eq("id", s.ID)},
	)
	if err != nil {
		return err
	}
	s.Status = StatusCompleted
	s.EndedAt = &endedAt

	if s.Number < SessionCount {
		_, err = e.store.Update(ctx, "sessions",
			store.Row{"status": string(StatusAvailable)},
			[]store.Filter{
				store.Eq("user_id", s.UserID),
				store.Eq("session_number", s.Number+1),
				store.Eq("status", string(StatusLocked)),
			},
		)
		if err != nil {
			return err
		}
	}

	if code, ok := MilestoneBadges[s.Number]; ok {
		if err := e.AwardBadge(ctx, s.UserID, code); err != nil {
			return err
		}
	}
	e.log.Info("session completed", "user_id", s.UserID, "session_number", s.Number)
	return nil
}
