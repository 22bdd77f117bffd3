package jobs

import "errors"

var (
	ErrInvalidJob    = errors.New("invalid job")
	ErrWorkNotFound  = errors.New("no work registered under that name")
	ErrWorkExists    = errors.New("work already registered under that name")
)
