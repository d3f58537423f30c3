// Package domain defines shared domain types and error kinds.
package domain

import "errors"

var (
	// ErrPermissionDenied is returned when the actor lacks admin privilege.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidArgument is returned for missing or malformed input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned when the operation target does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransportTimeout classifies membership lookups that exceeded their
	// bound. It is only used for logging; callers never receive it.
	ErrTransportTimeout = errors.New("transport timeout")
)
