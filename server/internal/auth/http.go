package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sensorsight/sensorsight/server/internal/config"
)

// Auth modes.
const (
	ModeAPIKey = "apikey"
	ModeJWT    = "jwt"
	ModeNone   = "none"
)

// HealthPath is always served without credentials.
const HealthPath = "/api/v1/health"

type subjectKey struct{}

// Subject returns the JWT subject stored by HTTPMiddleware, if any.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}

// HTTPMiddleware returns REST authentication middleware for cfg.Mode:
//
//	apikey  the configured header must carry the key
//	jwt     Authorization: Bearer <HS256 token> with a sub claim
//	none    everything passes
//
// WebSocket upgrades may pass the bearer token as ?access_token= since
// browsers cannot set headers on them.
func HTTPMiddleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	header := cfg.EffectiveHeader()
	key := cfg.Key()
	secret := []byte(cfg.JWTSecret())

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == HealthPath {
				next.ServeHTTP(w, r)
				return
			}

			switch cfg.Mode {
			case ModeAPIKey:
				if key != "" && !keyEqual(r.Header.Get(header), key) {
					unauthorized(w, "invalid api key")
					return
				}
			case ModeJWT:
				sub, err := ParseToken(bearerToken(r), secret)
				if err != nil {
					slog.Debug("auth: rejected token", "path", r.URL.Path, "err", err)
					unauthorized(w, "invalid or missing bearer token")
					return
				}
				r = r.WithContext(context.WithValue(r.Context(), subjectKey{}, sub))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
