// Package chat composes the progression engine, the transcript sequencer
// and the patient generator into the two user-facing flows: send a chat
// turn and end a session.
package chat

import (
	"context"

	"osteo-training-backend/internal/apperr"
	"osteo-training-backend/internal/auth"
	"osteo-training-backend/internal/llm"
	"osteo-training-backend/internal/platform/logger"
	"osteo-training-backend/internal/progression"
	"osteo-training-backend/internal/prompts"
	"osteo-training-backend/internal/transcript"
)

type Orchestrator struct {
	log          *logger.Logger
	engine       *progression.Engine
	transcript   *transcript.Sequencer
	generator    llm.Client
	chatModel    string
	historyTurns int
}

func NewOrchestrator(log *logger.Logger, engine *progression.Engine, seq *transcript.Sequencer, generator llm.Client, chatModel string, historyTurns int) *Orchestrator {
	return &Orchestrator{
		log:          log.With("service", "chat"),
		engine:       engine,
		transcript:   seq,
		generator:    generator,
		chatModel:    chatModel,
		historyTurns: historyTurns,
	}
}

// TurnResult is the student-facing outcome of a chat turn. Difficulty and
// reorientation deliberately have no place here.
type TurnResult struct {
	PatientMessage     string `json:"patient_message"`
	Language           string `json:"language"`
	SessionNumber      int    `json:"session_number"`
	PatientAge         int    `json:"patient_age"`
	PatientGenderLabel string `json:"patient_gender_label"`
}

// SendTurn runs one conversational exchange: resolve and (if needed) start
// the session, synthesize the patient's opening exactly once, persist the
// student message, then generate and persist the patient's reply.
//
// Every write is guarded by an existence check, so re-driving the request
// after a partial failure never duplicates the opening message.
func (o *Orchestrator) SendTurn(ctx context.Context, profile *auth.Profile, sessionID, message string) (*TurnResult, error) {
	session, err := o.engine.SessionByID(ctx, profile.UserID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := o.engine.StartOrResume(ctx, session); err != nil {
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

	hasMessages, err := o.transcript.HasMessages(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if !hasMessages && session.PatientOpeningStarts {
		opening, err := o.generator.GenerateText(ctx, o.chatModel, prompts.PatientSystem(lang), prompts.Opening(sc))
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, "patient simulation unavailable", err)
		}
		if _, err := o.transcript.Append(ctx, session.ID, session.UserID, transcript.RolePatient, opening); err != nil {
			return nil, err
		}
	}

	if _, err := o.transcript.Append(ctx, session.ID, session.UserID, transcript.RoleStudent, message); err != nil {
		return nil, err
	}

	history, err := o.transcript.History(ctx, session.ID, o.historyTurns)
	if err != nil {
		return nil, err
	}
	reply, err := o.generator.GenerateText(ctx, o.chatModel, prompts.PatientSystem(lang), prompts.Reply(sc, history))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, "patient simulation unavailable", err)
	}
	if _, err := o.transcript.Append(ctx, session.ID, session.UserID, transcript.RolePatient, reply); err != nil {
		return nil, err
	}

	return &TurnResult{
		PatientMessage:     reply,
		Language:           lang,
		SessionNumber:      session.Number,
		PatientAge:         session.PatientAge,
		PatientGenderLabel: session.PatientLabel(lang),
	}, nil
}

// EndSession completes the session idempotently. Feedback generation is a
// separate, explicitly requested action, never a side effect of ending.
func (o *Orchestrator) EndSession(ctx context.Context, profile *auth.Profile, sessionID string) (*progression.Session, error) {
	session, err := o.engine.SessionByID(ctx, profile.UserID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := o.engine.Complete(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}
