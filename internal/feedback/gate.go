package feedback

import (
	"context"
	"encoding/json"
	"sort"

	"osteo-training-backend/internal/apperr"
	"osteo-training-backend/internal/auth"
	"osteo-training-backend/internal/llm"
	"osteo-training-backend/internal/platform/logger"
	"osteo-training-backend/internal/progression"
	"osteo-training-backend/internal/prompts"
	"osteo-training-backend/internal/store"
	"osteo-training-backend/internal/transcript"
)

// SkillBadgeThreshold is how many feedback records must carry a true
// indicator before the matching skill badge is awarded.
const SkillBadgeThreshold = 3

type Gate struct {
	store      store.Gateway
	log        *logger.Logger
	generator  llm.Client
	engine     *progression.Engine
	transcript *transcript.Sequencer
	evalModel  string
}

func NewGate(gw store.Gateway, log *logger.Logger, generator llm.Client, engine *progression.Engine, seq *transcript.Sequencer, evalModel string) *Gate {
	return &Gate{
		store:      gw,
		log:        log.With("service", "feedback"),
		generator:  generator,
		engine:     engine,
		transcript: seq,
		evalModel:  evalModel,
	}
}

// RequestFeedback generates and persists the evaluation for a completed
// session. A second request returns the stored record without touching the
// generator. Invalid generator output persists nothing.
func (g *Gate) RequestFeedback(ctx context.Context, profile *auth.Profile, session *progression.Session) (*Feedback, error) {
	if session.Status != progression.StatusCompleted {
		return nil, apperr.New(apperr.KindForbidden, "feedback only after completion")
	}

	existing, err := g.bySession(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	history, err := g.transcript.History(ctx, session.ID, 0)
	if err != nil {
		return nil, err
	}

	lang := profile.PreferredLanguage
	sc := prompts.SessionContext{
		SessionNumber:        session.Number,
		PatientAge:           session.PatientAge,
		PatientGenderLabel:   session.PatientLabel(lang),
		Difficulty:           string(session.Difficulty),
		Reorientation:        string(session.Reorientation),
		OpeningPatientStarts: session.PatientOpeningStarts,
		Language:             lang,
	}
	raw, err := g.generator.GenerateStructured(ctx,
		g.evalModel,
		prompts.EvalSystem(lang),
		prompts.Eval(sc, string(session.PatientGender), history),
		Schema(),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, "feedback generation unavailable", err)
	}

	fb := &Feedback{SessionID: session.ID, UserID: session.UserID}
	if err := json.Unmarshal(raw, fb); err != nil {
		// Schema validation already passed, so this is a programming
		// error, not generator misbehavior.
		return nil, apperr.Wrap(apperr.KindInternal, "decode validated feedback", err)
	}

	if err := g.persist(ctx, fb); err != nil {
		if store.IsUniqueViolation(err) {
			// Concurrent generation: the first writer wins, return its row.
			return g.mustBySession(ctx, session.ID)
		}
		return nil, err
	}

	if err := g.EvaluateSkillBadges(ctx, session.UserID, SkillBadgeThreshold); err != nil {
		return nil, err
	}
	g.log.Info("feedback stored", "session_id", session.ID, "language", fb.Language)
	return fb, nil
}

func (g *Gate) persist(ctx context.Context, fb *Feedback) error {
	studentFacing, _ := json.Marshal(fb.StudentFacing)
	scores, _ := json.Marshal(fb.InternalScores)
	indicators, _ := json.Marshal(fb.SkillIndicators)
	kpis, _ := json.Marshal(fb.KPIs)
	return g.store.Insert(ctx, "feedback", []store.Row{{
		"session_id":       fb.SessionID,
		"user_id":          fb.UserID,
		"language":         fb.Language,
		"student_facing":   studentFacing,
		"internal_scores":  scores,
		"skill_indicators": indicators,
		"kpis":             kpis,
	}})
}

// BySession returns the stored feedback for a session, or NotFound.
func (g *Gate) BySession(ctx context.Context, sessionID string) (*Feedback, error) {
	fb, err := g.bySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if fb == nil {
		return nil, apperr.New(apperr.KindNotFound, "no feedback for this session")
	}
	return fb, nil
}

func (g *Gate) bySession(ctx context.Context, sessionID string) (*Feedback, error) {
	row, err := g.store.SelectOne(ctx, "feedback", nil, store.Query{
		Filters: []store.Filter{store.Eq("session_id", sessionID)},
	})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return fromRow(row)
}

func (g *Gate) mustBySession(ctx context.Context, sessionID string) (*Feedback, error) {
	fb, err := g.bySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if fb == nil {
		return nil, apperr.New(apperr.KindStoreFailure, "feedback missing after conflicting insert")
	}
	return fb, nil
}

// EvaluateSkillBadges counts, per skill, the user's feedback records with
// that indicator true and awards the badge at the threshold. Re-awarding is
// a no-op.
func (g *Gate) EvaluateSkillBadges(ctx context.Context, userID string, threshold int) error {
	rows, err := g.store.Select(ctx, "feedback", []string{"skill_indicators"}, store.Query{
		Filters: []store.Filter{store.Eq("user_id", userID)},
	})
	if err != nil {
		return err
	}

	counts := map[string]int{}
	for _, r := range rows {
		var indicators map[string]bool
		if err := store.AsJSON(r["skill_indicators"], &indicators); err != nil {
			continue
		}
		for _, k := range skillKeys {
			if indicators[k] {
				counts[k]++
			}
		}
	}

	keys := make([]string, 0, len(SkillBadges))
	for k := range SkillBadges {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, skill := range keys {
		if counts[skill] >= threshold {
			if err := g.engine.AwardBadge(ctx, userID, SkillBadges[skill]); err != nil {
				return err
			}
		}
	}
	return nil
}

// SubmitQuestionnaire upserts the post-session questionnaire. Allowed only
// once feedback exists for the session; resubmission overwrites.
func (g *Gate) SubmitQuestionnaire(ctx context.Context, profile *auth.Profile, sessionID string, q1, q2 int, openAnswer string) error {
	if _, err := g.engine.SessionByID(ctx, profile.UserID, sessionID); err != nil {
		return err
	}
	fb, err := g.bySession(ctx, sessionID)
	if err != nil {
		return err
	}
	if fb == nil {
		return apperr.New(apperr.KindForbidden, "questionnaire only after feedback")
	}
	return g.store.Upsert(ctx, "questionnaire", store.Row{
		"session_id":  sessionID,
		"user_id":     profile.UserID,
		"q1":          q1,
		"q2":          q2,
		"open_answer": openAnswer,
	}, []string{"session_id"})
}
