// Package progression owns the 16-session curriculum state machine:
// program assignment, seeding, weekly rate limiting, status transitions,
// unlock-on-completion and milestone badges.
package progression

import (
	"time"

	"osteo-training-backend/internal/apperr"
	"osteo-training-backend/internal/store"
)

const SessionCount = 16

type Status string

const (
	StatusLocked     Status = "locked"
	StatusAvailable  Status = "available"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

type Difficulty string

const (
	DifficultyL1 Difficulty = "L1"
	DifficultyL2 Difficulty = "L2"
	DifficultyL3 Difficulty = "L3"
)

type Reorientation string

const (
	ReorientationNone      Reorientation = "none"
	ReorientationImmediate Reorientation = "immediate"
	ReorientationDelayed   Reorientation = "delayed"
)

type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
)

// Session is one curriculum slot. Difficulty and Reorientation are hidden
// prompt parameters; handlers must never serialize them to students.
type Session struct {
	ID                   string
	UserID               string
	Number               int
	Status               Status
	Difficulty           Difficulty
	Reorientation        Reorientation
	PatientAge           int
	PatientGender        Gender
	PatientOpeningStarts bool
	StartedAt            *time.Time
	EndedAt              *time.Time
}

// SessionFromRow converts a store row, failing fast on values outside the
// closed enumerations instead of letting them propagate as strings.
func SessionFromRow(r store.Row) (*Session, error) {
	s := &Session{
		ID:                   store.AsString(r["id"]),
		UserID:               store.AsString(r["user_id"]),
		Number:               store.AsInt(r["session_number"]),
		Status:               Status(store.AsString(r["status"])),
		Difficulty:           Difficulty(store.AsString(r["difficulty"])),
		Reorientation:        Reorientation(store.AsString(r["reorientation"])),
		PatientAge:           store.AsInt(r["patient_age"]),
		PatientGender:        Gender(store.AsString(r["patient_gender"])),
		PatientOpeningStarts: store.AsBool(r["patient_opening_starts"]),
	}
	if s.ID == "" || s.UserID == "" {
		return nil, apperr.New(apperr.KindStoreFailure, "session row missing id or user_id")
	}
	if s.Number < 1 || s.Number > SessionCount {
		return nil, apperr.Newf(apperr.KindStoreFailure, "session row has invalid number %d", s.Number)
	}
	switch s.Status {
	case StatusLocked, StatusAvailable, StatusInProgress, StatusCompleted:
	default:
		return nil, apperr.Newf(apperr.KindStoreFailure, "session row has invalid status %q", s.Status)
	}
	switch s.Difficulty {
	case DifficultyL1, DifficultyL2, DifficultyL3:
	default:
		return nil, apperr.Newf(apperr.KindStoreFailure, "session row has invalid difficulty %q", s.Difficulty)
	}
	switch s.Reorientation {
	case ReorientationNone, ReorientationImmediate, ReorientationDelayed:
	default:
		return nil, apperr.Newf(apperr.KindStoreFailure, "session row has invalid reorientation %q", s.Reorientation)
	}
	switch s.PatientGender {
	case GenderFemale, GenderMale:
	default:
		return nil, apperr.Newf(apperr.KindStoreFailure, "session row has invalid gender %q", s.PatientGender)
	}
	if t, ok := store.AsTime(r["started_at"]); ok {
		s.StartedAt = &t
	}
	if t, ok := store.AsTime(r["ended_at"]); ok {
		s.EndedAt = &t
	}
	return s, nil
}

// PatientLabel localizes the patient description shown to the student.
func (s *Session) PatientLabel(lang string) string {
	if lang == "en" {
		if s.PatientAge < 17 {
			if s.PatientGender == GenderFemale {
				return "Girl"
			}
			return "Boy"
		}
		if s.PatientGender == GenderFemale {
			return "Woman"
		}
		return "Man"
	}
	if s.PatientAge < 17 {
		if s.PatientGender == GenderFemale {
			return "Fille"
		}
		return "Garçon"
	}
	if s.PatientGender == GenderFemale {
		return "Femme"
	}
	return "Homme"
}

// Program pins which sessions of 2..16 carry a reorientation scenario.
// Immutable once created.
type Program struct {
	UserID    string
	Immediate []int
	Delayed   []int
}

func programFromRow(r store.Row) (*Program, error) {
	p := &Program{UserID: store.AsString(r["user_id"])}
	if err := store.AsJSON(r["reorientation_immediate_sessions"], &p.Immediate); err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, "program row has invalid immediate sessions", err)
	}
	if err := store.AsJSON(r["reorientation_delayed_sessions"], &p.Delayed); err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, "program row has invalid delayed sessions", err)
	}
	return p, nil
}

func (p *Program) reorientationFor(sessionNumber int) Reorientation {
	for _, n := range p.Immediate {
		if n == sessionNumber {
			return ReorientationImmediate
		}
	}
	for _, n := range p.Delayed {
		if n == sessionNumber {
			return ReorientationDelayed
		}
	}
	return ReorientationNone
}
