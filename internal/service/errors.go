package service

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine. Callers match them with errors.Is;
// the wrapped message carries the detail.
var (
	// ErrInvalidArgument marks a caller error such as an unknown enum value. Not retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound marks a referenced record that does not exist. Not retried.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyProcessed marks an idempotent short-circuit. Callers treat it as success.
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrConflict marks an operation that would break an invariant, for example
	// moving an assigned client to another assistant.
	ErrConflict = errors.New("conflict")

	// ErrServiceUnavailable marks the absence of an eligible assistant. Retriable after backoff.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrStorageFailure marks a transport or transaction failure from the record store.
	// Every engine operation may be retried with the same input after it.
	ErrStorageFailure = errors.New("storage failure")
)

// storageError tags err as a storage failure unless it already carries one of
// the engine sentinels. Context errors stay matchable through the chain.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isEngineError(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}

func isEngineError(err error) bool {
	for _, sentinel := range []error{ErrInvalidArgument, ErrNotFound, ErrAlreadyProcessed, ErrConflict, ErrServiceUnavailable, ErrStorageFailure} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// IsTimeout reports whether err came from an expired or canceled caller context.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
