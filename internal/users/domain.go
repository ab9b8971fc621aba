package users

import "time"

// User represents a principal account. Authorization only ever needs its ID;
// profile fields live elsewhere.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
