package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
	// ErrInvalidCredentials signals a rejected login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAlreadyForwarded reports a repeated WhatsApp forward of the same alert set.
	ErrAlreadyForwarded = errors.New("alerts already forwarded")
)
