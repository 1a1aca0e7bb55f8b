package service

import "errors"

var (
	// ErrNoIdentity is returned by mutations issued before an owner
	// identity is available.
	ErrNoIdentity = errors.New("no owner identity available")

	// ErrTableMismatch is returned when a payload variant does not belong
	// to the table it was submitted for.
	ErrTableMismatch = errors.New("payload does not match table")

	// ErrBatchOffline is returned by BatchCreate without connectivity:
	// batch creates never participate in the offline queue.
	ErrBatchOffline = errors.New("batch create requires connectivity")
)
