// Package auth verifies bearer tokens issued by the external identity
// provider and bootstraps the local profile row for authenticated users.
package auth

import (
	"context"

	"osteo-training-backend/internal/apperr"
	"osteo-training-backend/internal/store"
)

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Profile is the authenticated-user record consumed by every domain
// operation.
type Profile struct {
	UserID            string
	Email             string
	Role              string
	Level             string
	PreferredLanguage string
}

func profileFromRow(r store.Row) (*Profile, error) {
	p := &Profile{
		UserID:            store.AsString(r["user_id"]),
		Email:             store.AsString(r["email"]),
		Role:              store.AsString(r["role"]),
		Level:             store.AsString(r["level"]),
		PreferredLanguage: store.AsString(r["preferred_language"]),
	}
	if p.UserID == "" {
		return nil, apperr.New(apperr.KindStoreFailure, "profile row missing user_id")
	}
	switch p.Role {
	case RoleStudent, RoleAdmin:
	default:
		return nil, apperr.Newf(apperr.KindStoreFailure, "profile row has invalid role %q", p.Role)
	}
	if p.PreferredLanguage != "fr" && p.PreferredLanguage != "en" {
		p.PreferredLanguage = "fr"
	}
	return p, nil
}

// loadOrCreateProfile returns the profile for userID, creating it with
// defaults on first sight. Safe under a concurrent first request: a unique
// violation on insert just means someone else won, so we re-read.
func (a *Authenticator) loadOrCreateProfile(ctx context.Context, userID, email string) (*Profile, error) {
	q := store.Query{Filters: []store.Filter{store.Eq("user_id", userID)}}
	row, err := a.store.SelectOne(ctx, "profiles", nil, q)
	if err != nil {
		return nil, err
	}
	if row != nil {
		return profileFromRow(row)
	}

	err = a.store.Insert(ctx, "profiles", []store.Row{{
		"user_id":            userID,
		"email":              email,
		"role":               RoleStudent,
		"level":              "autre",
		"preferred_language": "fr",
	}})
	if err != nil && !store.IsUniqueViolation(err) {
		return nil, err
	}

	row, err = a.store.SelectOne(ctx, "profiles", nil, q)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apperr.New(apperr.KindStoreFailure, "profile creation failed")
	}
	return profileFromRow(row)
}

type ctxKey struct{}

// WithProfile attaches the authenticated profile to the request context.
func WithProfile(ctx context.Context, p *Profile) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the authenticated profile, or nil outside the
// middleware.
func FromContext(ctx context.Context) *Profile {
	p, _ := ctx.Value(ctxKey{}).(*Profile)
	return p
}
