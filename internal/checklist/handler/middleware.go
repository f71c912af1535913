// Package handler exposes the checklist engine over HTTP. Handlers decode
// and validate requests, take the caller's scope from the context and hand
// off to the services; every rule lives in the services.
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/kitchensafe/kitchensafe-backend/internal/auth/jwt"
	apperrors "github.com/kitchensafe/kitchensafe-backend/pkg/errors"
	"github.com/kitchensafe/kitchensafe-backend/pkg/httputil"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	Validate(token string) (*jwt.Claims, error)
}

// ScopeResolver builds the caller's scope from its user id.
type ScopeResolver interface {
	Resolve(ctx context.Context, userID int64) (tenant.Scope, error)
}

// Authenticate verifies the bearer token, resolves the caller's scope and
// stores it in the request context.
func Authenticate(tokens TokenValidator, resolver ScopeResolver, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				httputil.Error(w, apperrors.Unauthenticated("missing authorization header"))
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				httputil.Error(w, apperrors.Unauthenticated("invalid authorization header format"))
				return
			}

			reqLog := log.WithRequestID(httputil.GetRequestID(r.Context()))
			claims, err := tokens.Validate(parts[1])
			if err != nil {
				reqLog.Debug().Err(err).Msg("token validation failed")
				httputil.Error(w, err)
				return
			}

			scope, err := resolver.Resolve(r.Context(), claims.UserID)
			if err != nil {
				reqLog.WithUserID(claims.UserID).Debug().Err(err).Msg("scope resolution failed")
				httputil.Error(w, err)
				return
			}

			httputil.SetUserID(r.Context(), scope.UserID)
			next.ServeHTTP(w, r.WithContext(tenant.WithScope(r.Context(), scope)))
		})
	}
}

// scopeOf returns the scope Authenticate stored. A missing scope means the
// route was mounted outside the authenticated group.
func scopeOf(r *http.Request) (tenant.Scope, error) {
	s, err := tenant.FromContext(r.Context())
	if err != nil {
		return tenant.Scope{}, apperrors.Unauthenticated("no authenticated principal")
	}
	return s, nil
}

// fail renders err. Site users get the friendly rendering.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	if s, serr := tenant.FromContext(r.Context()); serr == nil && s.Role == tenant.RoleSiteUser {
		httputil.FriendlyError(w, err)
		return
	}
	httputil.Error(w, err)
}
