// errors.go: structured error handling for strata cache operations
//
// This file provides structured error types using the go-errors library,
// enabling rich error context, categorization, and standardized error codes
// for all cache operations.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package strata

import (
	goerrors "errors"
	"fmt"

	"github.com/agilira/go-errors"
)

// Error codes for strata cache operations.
const (
	// Configuration errors (1xxx)
	ErrCodeInvalidConfig      errors.ErrorCode = "STRATA_INVALID_CONFIG"
	ErrCodeInvalidMaxSize     errors.ErrorCode = "STRATA_INVALID_MAX_SIZE"
	ErrCodeInvalidWindowRatio errors.ErrorCode = "STRATA_INVALID_WINDOW_RATIO"
	ErrCodeInvalidTTL         errors.ErrorCode = "STRATA_INVALID_TTL"
	ErrCodeMissingWeigher     errors.ErrorCode = "STRATA_MISSING_WEIGHER"
	ErrCodeOverlappingWindows errors.ErrorCode = "STRATA_OVERLAPPING_REFRESH_WINDOWS"

	// Operation errors (2xxx)
	ErrCodeKeyNotFound   errors.ErrorCode = "STRATA_KEY_NOT_FOUND"
	ErrCodeUnsupportedOp errors.ErrorCode = "STRATA_UNSUPPORTED_OPERATION"

	// Loader errors (3xxx)
	ErrCodeLoaderFailed       errors.ErrorCode = "STRATA_LOADER_FAILED"
	ErrCodeLoaderReturnedNull errors.ErrorCode = "STRATA_LOADER_RETURNED_NULL"
	ErrCodeLoaderCancelled    errors.ErrorCode = "STRATA_LOADER_CANCELLED"
	ErrCodeInvalidLoader      errors.ErrorCode = "STRATA_INVALID_LOADER"

	// Internal errors (5xxx)
	ErrCodeInternalError   errors.ErrorCode = "STRATA_INTERNAL_ERROR"
	ErrCodePanicRecovered  errors.ErrorCode = "STRATA_PANIC_RECOVERED"
	ErrCodeInterruptedWait errors.ErrorCode = "STRATA_INTERRUPTED_WAIT"
)

// Common error messages.
const (
	msgInvalidConfig      = "invalid configuration"
	msgInvalidMaxSize     = "invalid max size: must be greater than or equal to 0"
	msgInvalidWindowRatio = "invalid window ratio: must be between 0.0 and 1.0"
	msgInvalidTTL         = "invalid TTL: must be non-negative"
	msgMissingWeigher     = "maximum weight configured without a weigher"
	msgOverlappingWindows = "refresh policy time windows overlap"
	msgKeyNotFound        = "key not found in cache"
	msgUnsupportedOp      = "operation requires a loader configured on this cache"
	msgLoaderFailed       = "loader function failed"
	msgLoaderReturnedNull = "loader function returned a null value"
	msgLoaderCancelled    = "loader function was cancelled"
	msgInvalidLoader      = "loader function cannot be nil"
	msgInternalError      = "internal cache error"
	msgPanicRecovered     = "panic recovered in cache operation"
	msgInterruptedWait    = "read lock wait interrupted or timed out"
)

// NewErrInvalidMaxSize creates an error for an invalid max size.
func NewErrInvalidMaxSize(size int) error {
	return errors.NewWithContext(ErrCodeInvalidMaxSize, msgInvalidMaxSize, map[string]interface{}{
		"provided_size": size,
	})
}

// NewErrInvalidConfig creates a generic configuration error for settings
// that don't warrant their own dedicated constructor.
func NewErrInvalidConfig(reason string) error {
	return errors.NewWithField(ErrCodeInvalidConfig, msgInvalidConfig, "reason", reason)
}

// NewErrInvalidWindowRatio creates an error for an invalid window ratio.
func NewErrInvalidWindowRatio(ratio float64) error {
	return errors.NewWithContext(ErrCodeInvalidWindowRatio, msgInvalidWindowRatio, map[string]interface{}{
		"provided_ratio": ratio,
		"valid_range":    "0.0 < ratio < 1.0",
	})
}

// NewErrInvalidTTL creates an error for an invalid (negative) TTL.
func NewErrInvalidTTL(ttl interface{}) error {
	return errors.NewWithContext(ErrCodeInvalidTTL, msgInvalidTTL, map[string]interface{}{
		"provided_ttl": ttl,
	})
}

// NewErrMissingWeigher creates an error for MaxWeight set without a Weigher.
func NewErrMissingWeigher() error {
	return errors.NewWithField(ErrCodeMissingWeigher, msgMissingWeigher, "field", "MaxWeight")
}

// NewErrOverlappingWindows creates an error for overlapping refresh windows.
func NewErrOverlappingWindows(a, b string) error {
	return errors.NewWithContext(ErrCodeOverlappingWindows, msgOverlappingWindows, map[string]interface{}{
		"window_a": a,
		"window_b": b,
	})
}

// NewErrKeyNotFound creates an error for a missing key (not part of the
// normal GetIfPresent contract, but available for callers that want an
// error-returning lookup).
func NewErrKeyNotFound(key interface{}) error {
	return errors.NewWithContext(ErrCodeKeyNotFound, msgKeyNotFound, map[string]interface{}{
		"key": fmt.Sprintf("%v", key),
	})
}

// NewErrUnsupportedOperation creates an error for loading-specific APIs
// called on a cache with no configured Loader (spec §7).
func NewErrUnsupportedOperation(operation string) error {
	return errors.NewWithField(ErrCodeUnsupportedOp, msgUnsupportedOp, "operation", operation)
}

// NewErrLoaderFailed wraps a loader's own error.
func NewErrLoaderFailed(key interface{}, cause error) error {
	return errors.Wrap(cause, ErrCodeLoaderFailed, msgLoaderFailed).
		WithContext("key", fmt.Sprintf("%v", key)).
		AsRetryable()
}

// NewErrLoaderReturnedNull creates an error when a loader produces no value.
func NewErrLoaderReturnedNull(key interface{}) error {
	return errors.NewWithContext(ErrCodeLoaderReturnedNull, msgLoaderReturnedNull, map[string]interface{}{
		"key": fmt.Sprintf("%v", key),
	})
}

// NewErrLoaderCancelled wraps a context cancellation/deadline observed while
// waiting on a loader, preserving cause so goerrors.Is(err, context.Canceled)
// still works through the wrapped chain.
func NewErrLoaderCancelled(key interface{}, cause error) error {
	return errors.Wrap(cause, ErrCodeLoaderCancelled, msgLoaderCancelled).
		WithContext("key", fmt.Sprintf("%v", key))
}

// NewErrInvalidLoader creates an error for a nil loader function.
func NewErrInvalidLoader() error {
	return errors.NewWithField(ErrCodeInvalidLoader, msgInvalidLoader, "field", "Loader")
}

// NewErrInternal creates a generic internal error.
func NewErrInternal(operation string, cause error) error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeInternalError, msgInternalError).
			WithContext("operation", operation).
			WithSeverity("warning")
	}
	return errors.NewWithField(ErrCodeInternalError, msgInternalError, "operation", operation).
		WithSeverity("warning")
}

// NewErrPanicRecovered creates an error when a panic is recovered from a
// user-supplied callable (loader, listener, expiry, refresh policy, ...).
func NewErrPanicRecovered(operation string, panicValue interface{}) error {
	return errors.NewWithContext(ErrCodePanicRecovered, msgPanicRecovered, map[string]interface{}{
		"operation":   operation,
		"panic_value": fmt.Sprintf("%v", panicValue),
	}).WithSeverity("critical")
}

// NewErrInterruptedWait creates an error for a strict-mode read-lock
// timeout. Callers of the public API never see this directly: the engine
// degrades it to a miss (spec §7), but it is exposed for introspection via
// Logger calls and tests.
func NewErrInterruptedWait(key interface{}) error {
	return errors.NewWithContext(ErrCodeInterruptedWait, msgInterruptedWait, map[string]interface{}{
		"key": fmt.Sprintf("%v", key),
	})
}

// IsNotFound reports whether err is a key-not-found error.
func IsNotFound(err error) bool { return errors.HasCode(err, ErrCodeKeyNotFound) }

// IsUnsupportedOperation reports whether err is an unsupported-operation error.
func IsUnsupportedOperation(err error) bool { return errors.HasCode(err, ErrCodeUnsupportedOp) }

// IsLoaderError reports whether err originated from a loader.
func IsLoaderError(err error) bool {
	if err == nil {
		return false
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		code := coder.ErrorCode()
		return code == ErrCodeLoaderFailed || code == ErrCodeLoaderReturnedNull || code == ErrCodeLoaderCancelled
	}
	return false
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	if err == nil {
		return false
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		switch coder.ErrorCode() {
		case ErrCodeInvalidConfig, ErrCodeInvalidMaxSize, ErrCodeInvalidWindowRatio,
			ErrCodeInvalidTTL, ErrCodeMissingWeigher, ErrCodeOverlappingWindows:
			return true
		}
	}
	return false
}

// IsRetryable reports whether err can be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryable errors.Retryable
	if goerrors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return false
}

// GetErrorCode extracts the error code from err, if any.
func GetErrorCode(err error) errors.ErrorCode {
	if err == nil {
		return ""
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		return coder.ErrorCode()
	}
	return ""
}

// GetErrorContext extracts the structured context map from err, if any.
func GetErrorContext(err error) map[string]interface{} {
	if err == nil {
		return nil
	}
	var strataErr *errors.Error
	if goerrors.As(err, &strataErr) {
		return strataErr.Context
	}
	return nil
}
