package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/netpanel/netpanel/internal/shared"
)

type staticPrincipals map[int64]bool

func (p staticPrincipals) Exists(ctx context.Context, id int64) (bool, error) {
	return p[id], nil
}

type handlerEnv struct {
	fixture  *fixture
	handler  *Handler
	adminID  int64
	readerID int64
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	f := newFixture(t)
	ctx := context.Background()

	for _, key := range []struct{ resource, action string }{
		{ResourceRBAC, ActionRead}, {ResourceRBAC, ActionWrite},
	} {
		p, err := f.repo.CreatePermission(ctx, key.resource, key.action, "")
		require.NoError(t, err)
		f.perms[key.resource+":"+key.action] = p
	}
	adminRole, err := f.repo.CreateRole(ctx, "rbac-admin", "", false)
	require.NoError(t, err)
	f.roles["rbac-admin"] = adminRole
	f.grantRole(t, "rbac-admin", "rbac:read", true)
	f.grantRole(t, "rbac-admin", "rbac:write", true)
	f.assignRole(t, 100, "rbac-admin")

	readerRole, err := f.repo.CreateRole(ctx, "rbac-reader", "", false)
	require.NoError(t, err)
	f.roles["rbac-reader"] = readerRole
	f.grantRole(t, "rbac-reader", "rbac:read", true)
	f.assignRole(t, 101, "rbac-reader")

	svc := NewService(f.repo, nil, nil)
	mw := Middleware{Resolver: f.resolver}
	principals := staticPrincipals{100: true, 101: true, 1: true, 2: true, 7: true}
	h := NewHandler(nil, svc, f.resolver, principals, mw)

	return &handlerEnv{fixture: f, handler: h, adminID: 100, readerID: 101}
}

// do issues a request as the given principal. principal 0 means anonymous.
func (e *handlerEnv) do(t *testing.T, principal int64, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	if principal != 0 {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), principal)))
			})
		})
	}
	r.Route("/rbac", e.handler.MountRoutes)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRequiresPrincipal(t *testing.T) {
	env := newHandlerEnv(t)
	rec := env.do(t, 0, http.MethodGet, "/rbac/permissions", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerReadOnlyPrincipalCannotWrite(t *testing.T) {
	env := newHandlerEnv(t)

	rec := env.do(t, env.readerID, http.MethodGet, "/rbac/permissions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, env.readerID, http.MethodPost, "/rbac/permissions",
		`{"resource":"reports","action":"read"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerPermissionLifecycle(t *testing.T) {
	env := newHandlerEnv(t)

	rec := env.do(t, env.adminID, http.MethodPost, "/rbac/permissions",
		`{"resource":"reports","action":"read","description":"View reports"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created permissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "reports", created.Resource)
	require.NotZero(t, created.ID)

	rec = env.do(t, env.adminID, http.MethodPost, "/rbac/permissions",
		`{"resource":"reports","action":"read"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, env.adminID, http.MethodPost, "/rbac/permissions",
		`{"resource":"reports"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, env.adminID, http.MethodGet, fmt.Sprintf("/rbac/permissions/%d", created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, env.adminID, http.MethodDelete, fmt.Sprintf("/rbac/permissions/%d", created.ID), "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, env.adminID, http.MethodGet, fmt.Sprintf("/rbac/permissions/%d", created.ID), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerWhitespaceOnlyFieldsRejected(t *testing.T) {
	env := newHandlerEnv(t)

	// Whitespace-only values satisfy the required tag but fail the service's
	// trim validation; both surface as 400, never 500.
	rec := env.do(t, env.adminID, http.MethodPost, "/rbac/permissions",
		`{"resource":"   ","action":"read"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, env.adminID, http.MethodPost, "/rbac/roles",
		`{"name":"  "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	roleID := env.fixture.roles["operator"].ID
	rec = env.do(t, env.adminID, http.MethodPut, fmt.Sprintf("/rbac/roles/%d", roleID),
		`{"name":"   "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerSystemRoleDelete(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()

	system, err := env.fixture.repo.CreateRole(ctx, "builtin", "", true)
	require.NoError(t, err)

	rec := env.do(t, env.adminID, http.MethodDelete, fmt.Sprintf("/rbac/roles/%d", system.ID), "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, env.adminID, http.MethodDelete, "/rbac/roles/99999", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, env.adminID, http.MethodDelete, "/rbac/roles/not-a-number", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerGrantValidatesCatalogSides(t *testing.T) {
	env := newHandlerEnv(t)
	roleID := env.fixture.roles["operator"].ID

	rec := env.do(t, env.adminID, http.MethodPost, fmt.Sprintf("/rbac/roles/%d/permissions", roleID),
		`{"permission_id":99999}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	permID := env.fixture.perms["users:read"].ID
	rec = env.do(t, env.adminID, http.MethodPost, "/rbac/roles/99999/permissions",
		fmt.Sprintf(`{"permission_id":%d}`, permID))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, env.adminID, http.MethodPost, fmt.Sprintf("/rbac/roles/%d/permissions", roleID),
		fmt.Sprintf(`{"permission_id":%d}`, permID))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandlerUserAssignmentsRejectUnknownPrincipal(t *testing.T) {
	env := newHandlerEnv(t)
	roleID := env.fixture.roles["viewer"].ID

	rec := env.do(t, env.adminID, http.MethodPost, "/rbac/users/555/roles",
		fmt.Sprintf(`{"role_id":%d}`, roleID))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, env.adminID, http.MethodPost, "/rbac/users/7/roles",
		fmt.Sprintf(`{"role_id":%d}`, roleID))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandlerEffectivePermissionsAndCheck(t *testing.T) {
	env := newHandlerEnv(t)
	f := env.fixture

	f.grantRole(t, "operator", "users:read", true)
	f.grantRole(t, "operator", "users:write", true)
	f.assignRole(t, 7, "operator")
	f.override(t, 7, "users:write", false)

	rec := env.do(t, env.readerID, http.MethodGet, "/rbac/users/7/permissions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var effective []effectivePermissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &effective))
	require.Len(t, effective, 1)
	require.Equal(t, "users", effective[0].Resource)
	require.Equal(t, "read", effective[0].Action)
	require.Equal(t, SourceRole, effective[0].Source)

	rec = env.do(t, env.readerID, http.MethodPost, "/rbac/users/7/check",
		`{"resource":"users","action":"read"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var check checkPermissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &check))
	require.True(t, check.Allowed)

	rec = env.do(t, env.readerID, http.MethodPost, "/rbac/users/7/check",
		`{"resource":"users","action":"write"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &check))
	require.False(t, check.Allowed)

	rec = env.do(t, env.readerID, http.MethodPost, "/rbac/users/7/check",
		`{"resource":"users","actions":["read","write"],"mode":"all"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &check))
	require.False(t, check.Allowed)

	rec = env.do(t, env.readerID, http.MethodPost, "/rbac/users/7/check",
		`{"resource":"users","actions":["read","write"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &check))
	require.True(t, check.Allowed)

	rec = env.do(t, env.readerID, http.MethodPost, "/rbac/users/7/check",
		`{"resource":"users"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerSelfServicePermissions(t *testing.T) {
	env := newHandlerEnv(t)
	f := env.fixture

	f.grantRole(t, "operator", "users:read", true)
	f.assignRole(t, 7, "operator")

	// Principal 7 holds no rbac permissions, yet can read its own set.
	rec := env.do(t, 7, http.MethodGet, "/rbac/users/me/permissions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var effective []effectivePermissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &effective))
	require.Len(t, effective, 1)
	require.Equal(t, "users", effective[0].Resource)
	require.Equal(t, "read", effective[0].Action)

	// Another user's set still needs rbac:read.
	rec = env.do(t, 7, http.MethodGet, fmt.Sprintf("/rbac/users/%d", env.adminID)+"/permissions", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, 0, http.MethodGet, "/rbac/users/me/permissions", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerBulkAssignments(t *testing.T) {
	env := newHandlerEnv(t)
	f := env.fixture
	roleID := f.roles["viewer"].ID

	body := fmt.Sprintf(`{"permission_ids":[%d,%d]}`,
		f.perms["users:read"].ID, f.perms["settings:read"].ID)
	rec := env.do(t, env.adminID, http.MethodPost,
		fmt.Sprintf("/rbac/roles/%d/permissions/bulk", roleID), body)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, env.adminID, http.MethodGet,
		fmt.Sprintf("/rbac/roles/%d/permissions", roleID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var grants []grantedPermissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grants))
	require.Len(t, grants, 2)

	rec = env.do(t, env.adminID, http.MethodPost,
		fmt.Sprintf("/rbac/roles/%d/permissions/bulk", roleID), `{"permission_ids":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
