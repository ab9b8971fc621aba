package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/netpanel/netpanel/internal/platform/httpx"
	"github.com/netpanel/netpanel/internal/shared"
)

// Guard permissions for the admin API itself.
const (
	ResourceRBAC = "rbac"
	ActionRead   = "read"
	ActionWrite  = "write"
)

// PrincipalStore answers whether a principal exists before roles or
// overrides are attached to it. Implemented by the user store collaborator.
type PrincipalStore interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// Handler exposes the catalogs, grant graph and resolver over JSON.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	resolver   *Resolver
	principals PrincipalStore
	validate   *validator.Validate
	mw         Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, resolver *Resolver, principals PrincipalStore, mw Middleware) *Handler {
	return &Handler{
		logger:     logger,
		service:    service,
		resolver:   resolver,
		principals: principals,
		validate:   validator.New(),
		mw:         mw,
	}
}

// MountRoutes registers the admin API routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/permissions", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.mw.RequireAny(ResourceRBAC, ActionRead, ActionWrite))
			r.Get("/", h.listPermissions)
			r.Get("/{permissionID}", h.getPermission)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.mw.RequireAll(ResourceRBAC, ActionWrite))
			r.Post("/", h.createPermission)
			r.Delete("/{permissionID}", h.deletePermission)
		})
	})

	r.Route("/roles", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.mw.RequireAny(ResourceRBAC, ActionRead, ActionWrite))
			r.Get("/", h.listRoles)
			r.Get("/{roleID}", h.getRole)
			r.Get("/{roleID}/permissions", h.listRoleGrants)
			r.Get("/{roleID}/users", h.listUsersWithRole)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.mw.RequireAll(ResourceRBAC, ActionWrite))
			r.Post("/", h.createRole)
			r.Put("/{roleID}", h.updateRole)
			r.Delete("/{roleID}", h.deleteRole)
			r.Post("/{roleID}/permissions", h.assignRolePermission)
			r.Post("/{roleID}/permissions/bulk", h.assignRolePermissionsBulk)
			r.Delete("/{roleID}/permissions/{permissionID}", h.removeRolePermission)
		})
	})

	// Self service: a principal may read its own effective set without
	// holding rbac:read.
	r.Get("/users/me/permissions", h.myEffectivePermissions)

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.mw.RequireAny(ResourceRBAC, ActionRead, ActionWrite))
			r.Get("/roles", h.listUserRoles)
			r.Get("/permissions", h.listEffectivePermissions)
			r.Get("/permissions/overrides", h.listUserOverrides)
			r.Post("/check", h.checkPermission)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.mw.RequireAll(ResourceRBAC, ActionWrite))
			r.Post("/roles", h.assignUserRole)
			r.Post("/roles/bulk", h.assignUserRolesBulk)
			r.Delete("/roles/{roleID}", h.removeUserRole)
			r.Post("/permissions", h.assignUserPermission)
			r.Delete("/permissions/{permissionID}", h.removeUserPermission)
		})
	})
}

func urlID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

// requirePrincipal rejects writes against principals the user store does not
// know about. Grant mutators themselves stay validation free.
func (h *Handler) requirePrincipal(w http.ResponseWriter, r *http.Request, userID int64) bool {
	if h.principals == nil {
		return true
	}
	exists, err := h.principals.Exists(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if !exists {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown principal")
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Permission catalog
// ---------------------------------------------------------------------------

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, toPermissionResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "permissionID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return
	}
	perm, err := h.service.GetPermission(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPermissionResponse(perm))
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), req.Resource, req.Action, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPermissionResponse(perm))
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "permissionID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Role catalog
// ---------------------------------------------------------------------------

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "roleID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	grants, err := h.service.ListRoleGrants(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roleDetailResponse{
		roleResponse: toRoleResponse(role),
		Permissions:  toGrantedResponses(grants),
	})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Description, req.IsSystem)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "roleID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return
	}
	var req updateRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, req.Name, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "roleID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRoleGrants(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "roleID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return
	}
	grants, err := h.service.ListRoleGrants(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGrantedResponses(grants))
}

func (h *Handler) listUsersWithRole(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "roleID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return
	}
	ids, err := h.service.ListUsersWithRole(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string][]int64{"user_ids": ids})
}

// assignRolePermission validates both catalog sides before touching the
// grant graph, so a missing role or permission surfaces as 404 rather than
// an orphaned row.
func (h *Handler) assignRolePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := urlID(r, "roleID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return
	}
	var req assignRolePermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := h.service.GetRole(r.Context(), roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if _, err := h.service.GetPermission(r.Context(), req.PermissionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	granted := req.Granted == nil || *req.Granted
	if err := h.service.AssignPermissionToRole(r.Context(), roleID, req.PermissionID, granted); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignRolePermissionsBulk(w http.ResponseWriter, r *http.Request) {
	roleID, ok := urlID(r, "roleID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return
	}
	var req bulkRolePermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := h.service.GetRole(r.Context(), roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	granted := req.Granted == nil || *req.Granted
	for _, permID := range req.PermissionIDs {
		if _, err := h.service.GetPermission(r.Context(), permID); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if err := h.service.AssignPermissionToRole(r.Context(), roleID, permID, granted); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRolePermission(w http.ResponseWriter, r *http.Request) {
	roleID, okRole := urlID(r, "roleID")
	permID, okPerm := urlID(r, "permissionID")
	if !okRole || !okPerm {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return
	}
	if err := h.service.RemovePermissionFromRole(r.Context(), roleID, permID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// User assignments and overrides
// ---------------------------------------------------------------------------

func (h *Handler) listUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := urlID(r, "userID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return
	}
	roles, err := h.service.ListUserRoles(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) assignUserRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := urlID(r, "userID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return
	}
	var req assignUserRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.requirePrincipal(w, r, userID) {
		return
	}
	if _, err := h.service.GetRole(r.Context(), req.RoleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.AssignRoleToUser(r.Context(), userID, req.RoleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignUserRolesBulk(w http.ResponseWriter, r *http.Request) {
	userID, ok := urlID(r, "userID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return
	}
	var req bulkUserRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.requirePrincipal(w, r, userID) {
		return
	}
	for _, roleID := range req.RoleIDs {
		if _, err := h.service.GetRole(r.Context(), roleID); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if err := h.service.AssignRoleToUser(r.Context(), userID, roleID); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeUserRole(w http.ResponseWriter, r *http.Request) {
	userID, okUser := urlID(r, "userID")
	roleID, okRole := urlID(r, "roleID")
	if !okUser || !okRole {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return
	}
	if err := h.service.RemoveRoleFromUser(r.Context(), userID, roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) myEffectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
		return
	}
	perms, err := h.resolver.EffectivePermissions(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEffectiveResponses(perms))
}

func (h *Handler) listEffectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := urlID(r, "userID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return
	}
	perms, err := h.resolver.EffectivePermissions(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEffectiveResponses(perms))
}

func (h *Handler) listUserOverrides(w http.ResponseWriter, r *http.Request) {
	userID, ok := urlID(r, "userID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return
	}
	overrides, err := h.service.ListUserOverrides(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGrantedResponses(overrides))
}

func (h *Handler) assignUserPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := urlID(r, "userID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return
	}
	var req assignUserPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.requirePrincipal(w, r, userID) {
		return
	}
	if _, err := h.service.GetPermission(r.Context(), req.PermissionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	granted := req.Granted == nil || *req.Granted
	if err := h.service.AssignPermissionToUser(r.Context(), userID, req.PermissionID, granted); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeUserPermission(w http.ResponseWriter, r *http.Request) {
	userID, okUser := urlID(r, "userID")
	permID, okPerm := urlID(r, "permissionID")
	if !okUser || !okPerm {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return
	}
	if err := h.service.RemovePermissionFromUser(r.Context(), userID, permID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := urlID(r, "userID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return
	}
	var req checkPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}

	var allowed bool
	var err error
	switch {
	case len(req.Actions) > 0 && req.Mode == "all":
		allowed, err = h.resolver.CheckAll(r.Context(), userID, req.Resource, req.Actions)
	case len(req.Actions) > 0:
		allowed, err = h.resolver.CheckAny(r.Context(), userID, req.Resource, req.Actions)
	case req.Action != "":
		allowed, err = h.resolver.HasPermission(r.Context(), userID, req.Resource, req.Action)
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "action or actions required")
		return
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, checkPermissionResponse{
		UserID:   userID,
		Resource: req.Resource,
		Allowed:  allowed,
	})
}
