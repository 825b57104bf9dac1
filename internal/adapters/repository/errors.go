package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound  = errors.New("snapshot not found")
	ErrWrite     = errors.New("write snapshot")
	ErrEmptyPath = errors.New("snapshot directory not set")
)
