package admin

import (
	"net/http"
	"sort"
	"strconv"

	"osteo-training-backend/internal/httpx"
	"osteo-training-backend/internal/store"
)

// scoreAccumulator averages internal evaluation scores per grouping key.
type scoreAccumulator struct {
	sums   map[string]int
	counts map[string]int
}

func newScoreAccumulator() *scoreAccumulator {
	return &scoreAccumulator{sums: map[string]int{}, counts: map[string]int{}}
}

func (a *scoreAccumulator) add(scores map[string]int) {
	for key, val := range scores {
		a.sums[key] += val
		a.counts[key]++
	}
}

func (a *scoreAccumulator) averages() map[string]float64 {
	out := make(map[string]float64, len(a.sums))
	for key, sum := range a.sums {
		out[key] = float64(sum) / float64(a.counts[key])
	}
	return out
}

func (h *Handler) AnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	fbRows, err := h.store.Select(r.Context(), "feedback",
		[]string{"session_id", "user_id", "internal_scores"}, store.Query{})
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	sessionIDs := make([]any, 0, len(fbRows))
	for _, row := range fbRows {
		sessionIDs = append(sessionIDs, row["session_id"])
	}
	numberBySession := map[string]int{}
	if len(sessionIDs) > 0 {
		sessRows, err := h.store.Select(r.Context(), "sessions",
			[]string{"id", "session_number"},
			store.Query{Filters: []store.Filter{store.In("id", sessionIDs)}})
		if err != nil {
			httpx.Error(w, h.log, err)
			return
		}
		for _, row := range sessRows {
			numberBySession[store.AsString(row["id"])] = store.AsInt(row["session_number"])
		}
	}

	levelByUser := map[string]string{}
	profRows, err := h.store.Select(r.Context(), "profiles", []string{"user_id", "level"},
		store.Query{Filters: []store.Filter{store.Eq("role", "student")}})
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	for _, row := range profRows {
		levelByUser[store.AsString(row["user_id"])] = store.AsString(row["level"])
	}

	overall := newScoreAccumulator()
	byLevel := map[string]*scoreAccumulator{}
	byNumber := map[int]*scoreAccumulator{}
	for _, row := range fbRows {
		var scores map[string]int
		if err := store.AsJSON(row["internal_scores"], &scores); err != nil {
			continue
		}
		overall.add(scores)

		level := levelByUser[store.AsString(row["user_id"])]
		if level != "" {
			acc, ok := byLevel[level]
			if !ok {
				acc = newScoreAccumulator()
				byLevel[level] = acc
			}
			acc.add(scores)
		}
		if n := numberBySession[store.AsString(row["session_id"])]; n > 0 {
			acc, ok := byNumber[n]
			if !ok {
				acc = newScoreAccumulator()
				byNumber[n] = acc
			}
			acc.add(scores)
		}
	}

	levelOut := make(map[string]map[string]float64, len(byLevel))
	for level, acc := range byLevel {
		levelOut[level] = acc.averages()
	}
	numbers := make([]int, 0, len(byNumber))
	for n := range byNumber {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	numberOut := make(map[string]map[string]float64, len(byNumber))
	for _, n := range numbers {
		numberOut[strconv.Itoa(n)] = byNumber[n].averages()
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"feedback_count":    len(fbRows),
		"averages":          overall.averages(),
		"by_level":          levelOut,
		"by_session_number": numberOut,
	})
}
