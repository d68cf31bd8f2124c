package storage

import "errors"

// Common storage errors
var (
	ErrNotFound      = errors.New("not found")
	ErrDeployExists  = errors.New("deploy already recorded")
	ErrInvalidCursor = errors.New("invalid cursor")
)
