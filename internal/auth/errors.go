package auth

import "errors"

var (
	ErrUnauthorized   = errors.New("auth: unauthorized")
	ErrForbidden      = errors.New("auth: forbidden")
	ErrInvalidToken   = errors.New("auth: invalid token")
	ErrTenantMismatch = errors.New("auth: tenant mismatch")
	ErrNotFound       = errors.New("auth: resource not found")
)
