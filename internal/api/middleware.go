package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/mediqo/clinisync/internal/models"
	"github.com/mediqo/clinisync/internal/services"
)

// ActorResolver turns a bearer token into a sync actor.
type ActorResolver interface {
	VerifyToken(ctx context.Context, token string) (*models.Actor, error)
}

type actorCtxKey struct{}

// RequireActor resolves the Authorization header into an Actor and stores it
// in the request context. Requests without a valid actor never reach a
// handler.
func RequireActor(resolver ActorResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, services.CodeAuthRequired, "missing bearer token")
				return
			}

			actor, err := resolver.VerifyToken(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, services.CodeAuthInvalidToken, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), actorCtxKey{}, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFrom returns the actor resolved by RequireActor, or nil.
func ActorFrom(ctx context.Context) *models.Actor {
	actor, _ := ctx.Value(actorCtxKey{}).(*models.Actor)
	return actor
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}
