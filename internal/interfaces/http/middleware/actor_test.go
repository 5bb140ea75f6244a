package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
)

func actorProbe(t *testing.T, headers map[string]string) (common.UserID, common.ActorRole) {
	t.Helper()

	var userID common.UserID
	var role common.ActorRole
	h := NewActorMiddleware().Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID = ContextGetUserID(r.Context())
		role = ContextGetActorRole(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	return userID, role
}

func TestActorMiddlewareExtractsHeaders(t *testing.T) {
	userID, role := actorProbe(t, map[string]string{
		HeaderUserID:    "user-1",
		HeaderActorRole: "cro",
	})

	assert.Equal(t, common.UserID("user-1"), userID)
	assert.Equal(t, common.RoleCRO, role)
}

func TestActorMiddlewareDefaultsToPharma(t *testing.T) {
	userID, role := actorProbe(t, nil)

	assert.Equal(t, common.UserID(""), userID)
	assert.Equal(t, common.RolePharma, role)
}

func TestActorMiddlewareIgnoresUnknownRole(t *testing.T) {
	_, role := actorProbe(t, map[string]string{HeaderActorRole: "superuser"})

	assert.Equal(t, common.RolePharma, role)
}

func TestContextHelpersOnBareContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	assert.Equal(t, common.UserID(""), ContextGetUserID(req.Context()))
	assert.Equal(t, common.RolePharma, ContextGetActorRole(req.Context()))
}
