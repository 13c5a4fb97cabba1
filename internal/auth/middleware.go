package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"osteo-training-backend/internal/apperr"
	"osteo-training-backend/internal/httpx"
	"osteo-training-backend/internal/platform/logger"
	"osteo-training-backend/internal/store"
)

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Authenticator validates HS256 bearer tokens from the identity provider
// and resolves them to a local profile.
type Authenticator struct {
	store  store.Gateway
	log    *logger.Logger
	secret []byte
}

func NewAuthenticator(gw store.Gateway, log *logger.Logger, secret string) *Authenticator {
	return &Authenticator{
		store:  gw,
		log:    log.With("service", "auth"),
		secret: []byte(secret),
	}
}

// Middleware rejects requests without a valid bearer token and injects the
// caller's profile into the context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile, err := a.authenticate(r)
		if err != nil {
			httpx.Error(w, a.log, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithProfile(r.Context(), profile)))
	})
}

// RequireAdmin guards admin routes. Must run inside Middleware.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := FromContext(r.Context())
		if p == nil || p.Role != RoleAdmin {
			httpx.Error(w, a.log, apperr.New(apperr.KindForbidden, "admin only"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) authenticate(r *http.Request) (*Profile, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, apperr.New(apperr.KindUnauthorized, "missing bearer token")
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")

	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, apperr.Wrap(apperr.KindUnauthorized, "invalid token", err)
	}
	if c.Subject == "" {
		return nil, apperr.New(apperr.KindUnauthorized, "token missing subject")
	}

	return a.loadOrCreateProfile(r.Context(), c.Subject, c.Email)
}
