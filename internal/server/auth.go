package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/engine/auth"
)

type userKey struct{}

func withUser(ctx context.Context, u domain.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

func userFromContext(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userKey{}).(domain.User)
	return u, ok
}

// principalFromRequest returns the authenticated caller or a 401.
func principalFromRequest(ctx context.Context) (domain.Principal, huma.StatusError) {
	if u, ok := userFromContext(ctx); ok && u.ID != "" {
		return u.Principal(), nil
	}
	return domain.Principal{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// publicPaths lists the routes under basePath reachable without a token.
func publicPaths(basePath string, exportRequiresAuth bool) map[string]bool {
	public := map[string]bool{
		path.Join(basePath, "health"):        true,
		path.Join(basePath, "openapi.json"):  true,
		path.Join(basePath, "auth/login"):    true,
		path.Join(basePath, "auth/register"): true,
	}
	if !exportRequiresAuth {
		public[path.Join(basePath, "issues/export")] = true
	}
	return public
}

// newAuthMiddleware resolves the bearer token of every request under basePath
// that is not public. The account is re-read on each request, so deactivation
// takes effect before the token expires.
func newAuthMiddleware(basePath string, public map[string]bool, svc auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath+"/") || req.Method == http.MethodOptions {
				next.ServeHTTP(w, req)
				return
			}
			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			if public[strings.TrimSuffix(req.URL.Path, "/")] {
				if token, ok := bearerToken(authz); ok {
					if u, err := svc.Resolve(req.Context(), token); err == nil {
						req = req.WithContext(withUser(req.Context(), u))
					}
				}
				next.ServeHTTP(w, req)
				return
			}
			if authz == "" {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "token is missing", nil))
				return
			}
			token, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "invalid token format", map[string]any{"kind": auth.InvalidFormat}))
				return
			}
			u, err := svc.Resolve(req.Context(), token)
			if err != nil {
				respondStatusError(w, handleError(err))
				return
			}
			next.ServeHTTP(w, req.WithContext(withUser(req.Context(), u)))
		})
	}
}

// wsAuthenticator accepts the token from ?token= or the Authorization header.
func wsAuthenticator(svc auth.Service) func(r *http.Request) error {
	return func(r *http.Request) error {
		token := strings.TrimSpace(r.URL.Query().Get("token"))
		if token == "" {
			var ok bool
			if token, ok = bearerToken(r.Header.Get("Authorization")); !ok {
				return errors.New("token is missing")
			}
		}
		_, err := svc.Resolve(r.Context(), token)
		return err
	}
}

// requireAccess rejects principals outside policy before the handler runs.
func requireAccess(api huma.API, policy auth.Policy) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		p, authErr := principalFromRequest(ctx.Context())
		if authErr != nil {
			writeStatusError(api, ctx, authErr)
			return
		}
		if err := policy.Check(p); err != nil {
			writeStatusError(api, ctx, handleError(err))
			return
		}
		next(ctx)
	}
}

func writeStatusError(api huma.API, ctx huma.Context, err huma.StatusError) {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.SetStatus(err.GetStatus())
	_ = api.Marshal(ctx.BodyWriter(), "application/json", err)
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
