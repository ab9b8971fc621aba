package rbac

import "time"

type permissionResponse struct {
	ID          int64     `json:"id"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type roleResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type grantedPermissionResponse struct {
	permissionResponse
	Granted bool `json:"granted"`
}

type effectivePermissionResponse struct {
	permissionResponse
	Granted bool   `json:"granted"`
	Source  string `json:"source"`
}

type roleDetailResponse struct {
	roleResponse
	Permissions []grantedPermissionResponse `json:"permissions"`
}

type createPermissionRequest struct {
	Resource    string `json:"resource" validate:"required"`
	Action      string `json:"action" validate:"required"`
	Description string `json:"description"`
}

type createRoleRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	IsSystem    bool   `json:"is_system"`
}

type updateRoleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type assignRolePermissionRequest struct {
	PermissionID int64 `json:"permission_id" validate:"required"`
	Granted      *bool `json:"granted"`
}

type bulkRolePermissionRequest struct {
	PermissionIDs []int64 `json:"permission_ids" validate:"required,min=1"`
	Granted       *bool   `json:"granted"`
}

type assignUserRoleRequest struct {
	RoleID int64 `json:"role_id" validate:"required"`
}

type bulkUserRoleRequest struct {
	RoleIDs []int64 `json:"role_ids" validate:"required,min=1"`
}

type assignUserPermissionRequest struct {
	PermissionID int64 `json:"permission_id" validate:"required"`
	Granted      *bool `json:"granted"`
}

type checkPermissionRequest struct {
	Resource string   `json:"resource" validate:"required"`
	Action   string   `json:"action"`
	Actions  []string `json:"actions"`
	Mode     string   `json:"mode" validate:"omitempty,oneof=any all"`
}

type checkPermissionResponse struct {
	UserID   int64  `json:"user_id"`
	Resource string `json:"resource"`
	Allowed  bool   `json:"allowed"`
}

func toPermissionResponse(p Permission) permissionResponse {
	return permissionResponse{
		ID:          p.ID,
		Resource:    p.Resource,
		Action:      p.Action,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
	}
}

func toRoleResponse(r Role) roleResponse {
	return roleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toGrantedResponses(perms []GrantedPermission) []grantedPermissionResponse {
	out := make([]grantedPermissionResponse, 0, len(perms))
	for _, gp := range perms {
		out = append(out, grantedPermissionResponse{
			permissionResponse: toPermissionResponse(gp.Permission),
			Granted:            gp.Granted,
		})
	}
	return out
}

func toEffectiveResponses(perms []EffectivePermission) []effectivePermissionResponse {
	out := make([]effectivePermissionResponse, 0, len(perms))
	for _, ep := range perms {
		out = append(out, effectivePermissionResponse{
			permissionResponse: toPermissionResponse(ep.Permission),
			Granted:            ep.Granted,
			Source:             ep.Source,
		})
	}
	return out
}
