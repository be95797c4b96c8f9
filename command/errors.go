package command

import "errors"

// Dispatch errors
var (
	ErrInvalidPayload = errors.New("invalid command payload")
)
