package service

import "errors"

var (
	// ErrAccessDenied is returned when the actor may not act on the complaint.
	ErrAccessDenied = errors.New("access denied")
	// ErrInvalidInput wraps rejected request fields.
	ErrInvalidInput = errors.New("invalid input")
)
