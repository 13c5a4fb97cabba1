package progression

import (
	"context"

	"osteo-training-backend/internal/store"
)

// MilestoneBadges maps session numbers to the badge earned by completing
// them. Other session numbers award nothing.
var MilestoneBadges = map[int]string{
	1:  "MILESTONE_SESSION_1",
	4:  "MILESTONE_SESSION_4",
	8:  "MILESTONE_SESSION_8",
	12: "MILESTONE_SESSION_12",
	16: "MILESTONE_SESSION_16",
}

// AwardBadge grants a badge once. Re-awarding is a no-op; the unique
// constraint on (user_id, badge_code) backstops the read-then-write check
// under concurrent requests.
func (e *Engine) AwardBadge(ctx context.Context, userID, badgeCode string) error {
	row, err := e.store.SelectOne(ctx, "badges", []string{"badge_code"}, store.Query{
		Filters: []store.Filter{
			store.Eq("user_id", userID),
			store.Eq("badge_code", badgeCode),
		},
	})
	if err != nil {
		return err
	}
	if row != nil {
		return nil
	}

	err = e.store.Insert(ctx, "badges", []store.Row{{
		"user_id":    userID,
		"badge_code": badgeCode,
		"awarded_at": e.now(),
	}})
	if err != nil && !store.IsUniqueViolation(err) {
		return err
	}
	return nil
}

// BadgeCodes lists the user's badges in award order.
func (e *Engine) BadgeCodes(ctx context.Context, userID string) ([]string, error) {
	rows, err := e.store.Select(ctx, "badges", []string{"badge_code"}, store.Query{
		Filters: []store.Filter{store.Eq("user_id", userID)},
		Order:   &store.Order{Col: "awarded_at"},
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.AsString(r["badge_code"]))
	}
	return out, nil
}
