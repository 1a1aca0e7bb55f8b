package store

import "errors"

var ErrOperationNotFound = errors.New("pending operation not found")
