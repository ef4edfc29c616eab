// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested execution does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists indicates an execution was opened twice with the same id.
var ErrAlreadyExists = errors.New("already exists")

// ErrBudgetExceeded signals that a charge pushed an execution over its budget
// limit. The charge itself is recorded; callers use this to stop issuing
// further eager work. It is an expected business outcome, not a failure.
var ErrBudgetExceeded = errors.New("budget exceeded")

// ErrHoldResolved indicates a finalize or refund was attempted on a hold that
// has already been resolved. Double resolution is never silently ignored.
var ErrHoldResolved = errors.New("hold already resolved")

// ErrValidation indicates invalid caller input.
var ErrValidation = errors.New("validation failed")
