package memloader

import "errors"

// Loader errors
var (
	ErrNotBound       = errors.New("loader is not bound to an engine")
	ErrSourceNotFound = errors.New("no source defined for module")
	ErrSourceIDEmpty  = errors.New("source id is empty")
	ErrInvalidBase    = errors.New("invalid module base url")
)
