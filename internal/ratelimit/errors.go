package ratelimit

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput is returned when Admit is called with an empty key or unknown class.
	ErrInvalidInput = errors.New("invalid rate limit input")
	// ErrInvalidConfig is returned when a Config fails validation.
	ErrInvalidConfig = errors.New("invalid rate limit config")
	// ErrMissingStore is returned when a limiter is built without all three stores.
	ErrMissingStore = errors.New("rate limit store missing")
	// ErrStorage marks failures of the durable stores.
	ErrStorage = errors.New("rate limit storage failure")
)

// Store names used in storage error reports.
const (
	StoreWindows    = "windows"
	StoreViolations = "violations"
	StoreBlocks     = "blocks"
)

// StorageError reports a failed store operation. Admission decisions are
// still valid when Admit returns one.
type StorageError struct {
	Store string
	Op    string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s store %s: %v", e.Store, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is makes every StorageError match ErrStorage.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// ResetError names the stores that failed during ResetClient.
type ResetError struct {
	Key    ClientKey
	Failed []*StorageError
}

func (e *ResetError) Error() string {
	return fmt.Sprintf("reset %s: partial failure in %s", e.Key, strings.Join(e.Stores(), ", "))
}

// Unwrap exposes the individual store failures to errors.Is and errors.As.
func (e *ResetError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f
	}

	return errs
}

// Stores returns the names of the failed stores.
func (e *ResetError) Stores() []string {
	names := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		names[i] = f.Store
	}

	return names
}
