package domain

import "errors"

var (
	// ErrInvalidInput is returned when a creation or submission is missing required fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when a request does not exist.
	ErrNotFound = errors.New("request not found")

	// ErrAlreadyTerminal is returned when answering a request that is no longer pending.
	ErrAlreadyTerminal = errors.New("request already completed")

	// ErrWaitTimeout is returned when a waiter's deadline passes before the request completes.
	ErrWaitTimeout = errors.New("timeout waiting for response")

	// ErrDuplicateID is returned when inserting an id that is already stored.
	ErrDuplicateID = errors.New("duplicate request id")
)
