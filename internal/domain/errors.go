package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidState    = errors.New("invalid state")
	ErrProviderFailure = errors.New("provider failure")
	ErrTimeout         = errors.New("deadline exceeded")
	ErrCanceled        = errors.New("canceled")
)
