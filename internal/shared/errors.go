package shared

import "errors"

var (
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a unique key collision on create.
	ErrAlreadyExists = errors.New("already exists")
	// ErrForbidden indicates the operation is rejected for this record.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation indicates the caller supplied unusable input.
	ErrValidation = errors.New("validation failed")
	// ErrStorageUnavailable indicates a connection or transaction failure.
	// Safe for callers to retry with backoff.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
