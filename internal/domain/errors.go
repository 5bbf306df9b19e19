package domain

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrNotActive = errors.New("not active")

	// ErrMainBorrowerExists is returned when a deal already has an active main contractor.
	ErrMainBorrowerExists = errors.New("only one contractor can be main for each deal")

	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
)
