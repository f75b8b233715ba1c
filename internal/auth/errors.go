package auth

import "errors"

var (
	// ErrInvalidToken indicates a malformed token or a bad signature.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrExpiredToken indicates the token is past its validity window.
	ErrExpiredToken = errors.New("auth: token expired")
	// ErrPrincipalNotFound indicates the token subject no longer exists.
	ErrPrincipalNotFound = errors.New("auth: principal not found")
	// ErrNotApproved indicates the principal awaits head approval.
	ErrNotApproved = errors.New("auth: principal not approved")
)
