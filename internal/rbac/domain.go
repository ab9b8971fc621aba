package rbac

import "time"

// Permission represents an atomic capability identified by a unique
// (resource, action) pair.
type Permission struct {
	ID          int64
	Resource    string
	Action      string
	Description string
	CreatedAt   time.Time
}

// Role represents a named, reusable bundle of permission grants. System
// roles can be read and updated but never deleted.
type Role struct {
	ID          int64
	Name        string
	Description string
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoleGrant ties a permission to a role with an allow/deny flag. At most one
// row exists per (role, permission) pair.
type RoleGrant struct {
	RoleID       int64
	PermissionID int64
	Granted      bool
	CreatedAt    time.Time
}

// UserRole links a user to a role.
type UserRole struct {
	UserID    int64
	RoleID    int64
	CreatedAt time.Time
}

// UserOverride grants or denies one permission to one user. It supersedes
// every role-derived grant for that permission, in both directions.
type UserOverride struct {
	UserID       int64
	PermissionID int64
	Granted      bool
	CreatedAt    time.Time
}

// GrantedPermission is a permission joined with its grant flag.
type GrantedPermission struct {
	Permission
	Granted bool
}

// Sources recorded on effective permission entries.
const (
	SourceRole     = "role"
	SourceOverride = "override"
)

// EffectivePermission is one entry of a user's resolved permission set.
type EffectivePermission struct {
	Permission
	Granted bool
	Source  string
}
