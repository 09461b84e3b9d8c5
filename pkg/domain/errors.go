package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is the closed set of failure categories an engine may return.
// pkg/rpc maps each one onto a connect.Code 1:1.
type ErrorCode string

const (
	CodeNotFound         ErrorCode = "not_found"
	CodeConcurrency      ErrorCode = "concurrency"
	CodeInvalid          ErrorCode = "invalid"
	CodeAlreadyExists    ErrorCode = "already_exists"
	CodePermissionDenied ErrorCode = "permission_denied"
	CodeUnauthenticated  ErrorCode = "unauthenticated"
	CodeResourceExhausted ErrorCode = "resource_exhausted"
	CodeInternal         ErrorCode = "internal"
)

// StoreError is the only error type engines, the façade, and tests should
// construct or match against. It carries an optional structured detail for
// the concurrency case.
type StoreError struct {
	Code    ErrorCode
	Message string
	Detail  *ConcurrencyErrorDetail
}

func (e *StoreError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is lets errors.Is(err, &StoreError{Code: CodeNotFound}) match any
// StoreError of that code regardless of message or detail.
func (e *StoreError) Is(target error) bool {
	var t *StoreError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// ConcurrencyErrorDetail reports what the aggregate's nonce actually was
// when an Append's optimistic-concurrency check failed, so a caller can
// decide whether to retry with the real value or surface a conflict.
type ConcurrencyErrorDetail struct {
	TenantID                 string
	AggregateID              string
	ExpectedNonce            uint64
	ActualLastAggregateNonce uint64
	ActualLastGlobalNonce    uint64
}

func NewNotFound(format string, args ...any) *StoreError {
	return &StoreError{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewInvalid(format string, args ...any) *StoreError {
	return &StoreError{Code: CodeInvalid, Message: fmt.Sprintf(format, args...)}
}

func NewAlreadyExists(format string, args ...any) *StoreError {
	return &StoreError{Code: CodeAlreadyExists, Message: fmt.Sprintf(format, args...)}
}

func NewPermissionDenied(format string, args ...any) *StoreError {
	return &StoreError{Code: CodePermissionDenied, Message: fmt.Sprintf(format, args...)}
}

func NewUnauthenticated(format string, args ...any) *StoreError {
	return &StoreError{Code: CodeUnauthenticated, Message: fmt.Sprintf(format, args...)}
}

func NewResourceExhausted(format string, args ...any) *StoreError {
	return &StoreError{Code: CodeResourceExhausted, Message: fmt.Sprintf(format, args...)}
}

func NewInternal(format string, args ...any) *StoreError {
	return &StoreError{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// NewConcurrencyError builds a StoreError carrying the detail the RPC
// surface relays back to a caller retrying an optimistic write.
func NewConcurrencyError(tenantID, aggregateID string, expected, actualLastAggregateNonce, actualLastGlobalNonce uint64) *StoreError {
	return &StoreError{
		Code:    CodeConcurrency,
		Message: fmt.Sprintf("aggregate %s: expected nonce %d, actual last nonce %d", aggregateID, expected, actualLastAggregateNonce),
		Detail: &ConcurrencyErrorDetail{
			TenantID:                 tenantID,
			AggregateID:              aggregateID,
			ExpectedNonce:            expected,
			ActualLastAggregateNonce: actualLastAggregateNonce,
			ActualLastGlobalNonce:    actualLastGlobalNonce,
		},
	}
}

// IsCode reports whether err is a *StoreError of the given code.
func IsCode(err error, code ErrorCode) bool {
	var se *StoreError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == code
}
