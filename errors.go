package watchreload

import (
	"errors"
	"fmt"
)

// Engine errors
var (
	// Abort-class errors. A hot update that hits one of these is not applied
	// at all and the caller is expected to fall back to a full reload.
	ErrSelfDeclined       = errors.New("aborted because of self decline")
	ErrDependencyDeclined = errors.New("aborted because of declined dependency")

	// Contained errors
	ErrModuleLoadFailed     = errors.New("module load failed")
	ErrModuleRedefineFailed = errors.New("module redefine failed")

	// Registration errors
	ErrModuleIDEmpty = errors.New("module id is empty")
	ErrPathConflict  = errors.New("path is already bound to another live module")
	ErrResolverNil   = errors.New("path resolver is nil")
	ErrLoaderNil     = errors.New("loader is nil")
	ErrObserverNil   = errors.New("observer is nil")
)

// SelfDeclineAbortError means a module refused hot update of itself.
type SelfDeclineAbortError struct {
	ID string
}

func (e SelfDeclineAbortError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSelfDeclined.Error(), e.ID)
}

func (e SelfDeclineAbortError) Unwrap() error { return ErrSelfDeclined }

// DependencyDeclineAbortError means Dependent declined changes of Dependency.
type DependencyDeclineAbortError struct {
	Dependent  string
	Dependency string
}

func (e DependencyDeclineAbortError) Error() string {
	return fmt.Sprintf("%s: %s in %s", ErrDependencyDeclined.Error(), e.Dependency, e.Dependent)
}

func (e DependencyDeclineAbortError) Unwrap() error { return ErrDependencyDeclined }

// ModuleLoadError wraps a loader failure for the changed module.
type ModuleLoadError struct {
	ID  string
	Err error
}

func (e ModuleLoadError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrModuleLoadFailed.Error(), e.ID, e.Err)
}

func (e ModuleLoadError) Unwrap() []error { return []error{ErrModuleLoadFailed, e.Err} }

// ModuleRedefineError wraps a factory failure of an outdated module.
type ModuleRedefineError struct {
	ID  string
	Err error
}

func (e ModuleRedefineError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrModuleRedefineFailed.Error(), e.ID, e.Err)
}

func (e ModuleRedefineError) Unwrap() []error { return []error{ErrModuleRedefineFailed, e.Err} }

// IsAbort reports whether err aborted a hot update, in which case the
// collaborator responsible for the full reload fallback should act.
func IsAbort(err error) bool {
	return errors.Is(err, ErrSelfDeclined) || errors.Is(err, ErrDependencyDeclined)
}
