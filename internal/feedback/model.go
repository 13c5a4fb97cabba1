// Package feedback enforces the feedback workflow gates: feedback only
// after completion, one feedback per session, questionnaire only after
// feedback, and skill badges over accumulated feedback history.
package feedback

import (
	"osteo-training-backend/internal/apperr"
	"osteo-training-backend/internal/llm"
	"osteo-training-backend/internal/store"
)

// SkillBadges maps skill-indicator keys to the badge earned once the
// indicator has been true in enough feedback records.
var SkillBadges = map[string]string{
	"active_listening":     "SKILL_ACTIVE_LISTENING",
	"reformulation":        "SKILL_REFORMULATION",
	"emotional_validation": "SKILL_EMOTIONAL_VALIDATION",
	"open_questions":       "SKILL_OPEN_QUESTIONS",
	"structure_clarity":    "SKILL_STRUCTURE_CLARITY",
}

var skillKeys = []string{
	"active_listening",
	"reformulation",
	"emotional_validation",
	"open_questions",
	"structure_clarity",
}

var scoreKeys = []string{"empathy", "structure", "alliance"}

type StudentFacing struct {
	Strengths          []string `json:"strengths"`
	AreasToImprove     []string `json:"areas_to_improve"`
	ReflectiveQuestion string   `json:"reflective_question"`
}

// Feedback is the full persisted evaluation. Students only ever see the
// StudentView projection.
type Feedback struct {
	SessionID       string          `json:"-"`
	UserID          string          `json:"-"`
	Language        string          `json:"language"`
	StudentFacing   StudentFacing   `json:"student_facing"`
	InternalScores  map[string]int  `json:"internal_scores"`
	SkillIndicators map[string]bool `json:"skill_indicators"`
	KPIs            map[string]any  `json:"kpis"`
}

// StudentView is the student-safe projection: no skill indicators, no KPIs.
type StudentView struct {
	Language       string         `json:"language"`
	StudentFacing  StudentFacing  `json:"student_facing"`
	InternalScores map[string]int `json:"internal_scores"`
}

func (f *Feedback) StudentView() StudentView {
	return StudentView{
		Language:       f.Language,
		StudentFacing:  f.StudentFacing,
		InternalScores: f.InternalScores,
	}
}

// AdminView exposes everything, with skill indicators normalized so old
// rows missing keys still render the full set.
type AdminView struct {
	Language        string          `json:"language"`
	StudentFacing   StudentFacing   `json:"student_facing"`
	InternalScores  map[string]int  `json:"internal_scores"`
	SkillIndicators map[string]bool `json:"skill_indicators"`
	KPIs            map[string]any  `json:"kpis"`
}

func (f *Feedback) AdminView() AdminView {
	kpis := f.KPIs
	if kpis == nil {
		kpis = map[string]any{}
	}
	return AdminView{
		Language:        f.Language,
		StudentFacing:   f.StudentFacing,
		InternalScores:  f.InternalScores,
		SkillIndicators: NormalizeSkillIndicators(f.SkillIndicators),
		KPIs:            kpis,
	}
}

// NormalizeSkillIndicators returns a map carrying every required key,
// defaulting missing ones to false.
func NormalizeSkillIndicators(raw map[string]bool) map[string]bool {
	out := make(map[string]bool, len(skillKeys))
	for _, k := range skillKeys {
		out[k] = raw[k]
	}
	return out
}

func fromRow(r store.Row) (*Feedback, error) {
	f := &Feedback{
		SessionID: store.AsString(r["session_id"]),
		UserID:    store.AsString(r["user_id"]),
		Language:  store.AsString(r["language"]),
	}
	if err := store.AsJSON(r["student_facing"], &f.StudentFacing); err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, "feedback row has invalid student_facing", err)
	}
	if err := store.AsJSON(r["internal_scores"], &f.InternalScores); err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, "feedback row has invalid internal_scores", err)
	}
	if err := store.AsJSON(r["skill_indicators"], &f.SkillIndicators); err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, "feedback row has invalid skill_indicators", err)
	}
	if err := store.AsJSON(r["kpis"], &f.KPIs); err != nil {
		return nil, apperr.Wrap(apperr.KindStoreFailure, "feedback row has invalid kpis", err)
	}
	return f, nil
}

// Schema is the JSON Schema the generator's structured output must satisfy
// before anything is persisted: exact key sets, 1..5 integer scores,
// boolean indicators, 3..5 item lists and a 10..400 char question.
func Schema() *llm.Schema {
	scoreProps := map[string]any{}
	for _, k := range scoreKeys {
		scoreProps[k] = map[string]any{"type": "integer", "minimum": 1, "maximum": 5}
	}
	skillProps := map[string]any{}
	for _, k := range skillKeys {
		skillProps[k] = map[string]any{"type": "boolean"}
	}
	phraseList := map[string]any{
		"type":     "array",
		"items":    map[string]any{"type": "string"},
		"minItems": 3,
		"maxItems": 5,
	}
	return &llm.Schema{
		Name: "session-feedback",
		Definition: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []any{"language", "student_facing", "internal_scores", "skill_indicators", "kpis"},
			"properties": map[string]any{
				"language": map[string]any{"type": "string", "enum": []any{"fr", "en"}},
				"student_facing": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []any{"strengths", "areas_to_improve", "reflective_question"},
					"properties": map[string]any{
						"strengths":        phraseList,
						"areas_to_improve": phraseList,
						"reflective_question": map[string]any{
							"type":      "string",
							"minLength": 10,
							"maxLength": 400,
						},
					},
				},
				"internal_scores": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             toAny(scoreKeys),
					"properties":           scoreProps,
				},
				"skill_indicators": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             toAny(skillKeys),
					"properties":           skillProps,
				},
				"kpis": map[string]any{"type": "object"},
			},
		},
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
