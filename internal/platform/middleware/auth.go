package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"storyledger/internal/consent"
)

type contextKey string

const actorKey contextKey = "actor"

// ActorFrom returns the authenticated actor placed by RequireAuth.
func ActorFrom(ctx context.Context) (consent.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(consent.Actor)
	return actor, ok
}

// WithActor is used by tests to inject an actor without a token.
func WithActor(ctx context.Context, actor consent.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// RequireAuth validates a Bearer token and stores the actor in context.
// Claims: sub (user id), tenant_id, role, email, name.
func RequireAuth(signingKey []byte, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				unauthorized(w, "missing bearer token")
				return
			}

			claims := jwt.MapClaims{}
			_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return signingKey, nil
			})
			if err != nil {
				log.DebugContext(r.Context(), "token rejected", "error", err)
				unauthorized(w, "invalid token")
				return
			}

			sub, _ := claims["sub"].(string)
			tenantID, _ := claims["tenant_id"].(string)
			if sub == "" || tenantID == "" {
				unauthorized(w, "token missing subject or tenant")
				return
			}
			role, _ := claims["role"].(string)
			email, _ := claims["email"].(string)
			name, _ := claims["name"].(string)

			actor := consent.Actor{
				ID:       sub,
				TenantID: tenantID,
				Email:    email,
				Name:     name,
				Role:     consent.Role(role),
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
