// Package middleware provides the HTTP middleware chain: actor propagation,
// request logging, and CORS.
package middleware

import (
	"context"
	"net/http"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
)

// Header names under which API clients identify themselves.  Authentication
// happens at the gateway; by the time a request reaches this service the
// headers are trusted.
const (
	HeaderUserID    = "X-User-ID"
	HeaderActorRole = "X-Actor-Role"
)

type actorContextKey struct{}

// actorInfo is the per-request identity extracted from headers.
type actorInfo struct {
	UserID common.UserID
	Role   common.ActorRole
}

// ActorMiddleware copies the acting user and role from request headers into
// the request context.
type ActorMiddleware struct {
	// DefaultRole applies when the role header is absent.  Pharma-side
	// clients predate the header, so they are the default.
	DefaultRole common.ActorRole
}

// NewActorMiddleware creates an ActorMiddleware defaulting to the pharma role.
func NewActorMiddleware() *ActorMiddleware {
	return &ActorMiddleware{DefaultRole: common.RolePharma}
}

// Handler extracts actor headers and stores them in the request context.
func (m *ActorMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := actorInfo{
			UserID: common.UserID(r.Header.Get(HeaderUserID)),
			Role:   parseRole(r.Header.Get(HeaderActorRole), m.DefaultRole),
		}
		ctx := context.WithValue(r.Context(), actorContextKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func parseRole(raw string, fallback common.ActorRole) common.ActorRole {
	switch common.ActorRole(raw) {
	case common.RolePharma, common.RoleCRO, common.RoleSystem:
		return common.ActorRole(raw)
	default:
		return fallback
	}
}

// ContextGetUserID returns the acting user id, or "" when absent.
func ContextGetUserID(ctx context.Context) common.UserID {
	if info, ok := ctx.Value(actorContextKey{}).(actorInfo); ok {
		return info.UserID
	}
	return ""
}

// ContextGetActorRole returns the acting role, or RolePharma when absent.
func ContextGetActorRole(ctx context.Context) common.ActorRole {
	if info, ok := ctx.Value(actorContextKey{}).(actorInfo); ok {
		return info.Role
	}
	return common.RolePharma
}
