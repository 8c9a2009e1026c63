package service

import "errors"

var (
	// ErrInvalidPagination is returned when limit or offset are out of range
	ErrInvalidPagination = errors.New("limit must be between 1 and 100 and offset must not be negative")

	// ErrInvalidIDs is returned when a notification id list is empty, too long or malformed
	ErrInvalidIDs = errors.New("notification ids must be 1 to 500 positive integers")

	// ErrInvalidReceiver is returned when a receiver has no id or an unknown type
	ErrInvalidReceiver = errors.New("invalid receiver")

	// ErrDuplicateRule is returned when two rules claim the same event type
	ErrDuplicateRule = errors.New("duplicate notification rule")

	// ErrInvalidCredentials is returned when authentication fails
	ErrInvalidCredentials = errors.New("invalid credentials")
)
