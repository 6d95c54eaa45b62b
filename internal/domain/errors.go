package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrUnavailable      = errors.New("upstream unavailable")
	ErrInvalidRecord    = errors.New("invalid record")
	ErrAlreadyRunning   = errors.New("refresh already in flight")
	ErrUnknownPartition = errors.New("unknown partition")
)
