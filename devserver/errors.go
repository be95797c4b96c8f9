package devserver

import "errors"

// Dev server errors
var (
	ErrRootNotDirectory = errors.New("root is not a directory")
	ErrInvalidIgnore    = errors.New("invalid ignore pattern")
	ErrAlreadyStarted   = errors.New("dev server already started")
)
