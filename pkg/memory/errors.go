package memory

import "errors"

var (
	// ErrEmptyUserID is returned by mutating operations given a blank user id.
	ErrEmptyUserID = errors.New("memory: empty user id")

	// ErrWriteFailed wraps a failed profile write after the previous record
	// has been restored.
	ErrWriteFailed = errors.New("memory: profile write failed")

	// ErrReadFailed reports a profile record that exists but could not be
	// read. Writes are refused so the record on disk is not replaced.
	ErrReadFailed = errors.New("memory: profile read failed")

	// ErrUserNotFound indicates no profile exists on disk or in cache.
	ErrUserNotFound = errors.New("memory: user not found")
)
