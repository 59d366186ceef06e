package models

import "errors"

var (
	// ErrSourceUnavailable marks an adapter input that is missing or corrupt.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrScoringFailed covers every scorer failure: transport, quota, malformed output.
	ErrScoringFailed = errors.New("scoring failed")
	ErrValidation    = errors.New("validation failed")
	ErrPersistence   = errors.New("persistence failed")
	ErrNotFound      = errors.New("not found")
)
