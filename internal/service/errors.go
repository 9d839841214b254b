package service

import "errors"

var (
	// ErrInvalidCredentials is deliberately shared between unknown-user and
	// wrong-password failures so responses cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserBlocked        = errors.New("user blocked")
	ErrRefreshMissing     = errors.New("refresh token missing")
	// ErrSessionInvalid covers an unknown, revoked or expired refresh session.
	ErrSessionInvalid = errors.New("refresh session revoked or expired")
)
