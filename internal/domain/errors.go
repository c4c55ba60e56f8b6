package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrAlreadyStarted = errors.New("engine already started")
	ErrNotStarted     = errors.New("engine not started")
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflicting state")
	ErrTimeout        = errors.New("operation timeout")
	ErrCanceled       = errors.New("operation canceled")
	ErrClosed         = errors.New("resource closed")
)

// ErrorKind classifies failures recorded on an execution.
type ErrorKind string

const (
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindNodeExecution ErrorKind = "node_execution"
	ErrorKindStore         ErrorKind = "store"
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindCancellation  ErrorKind = "cancellation"
	ErrorKindInternal      ErrorKind = "internal"
)

type ValidationIssue struct {
	NodeID  string `json:"node_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (i ValidationIssue) String() string {
	var b strings.Builder
	if i.NodeID != "" {
		b.WriteString("node ")
		b.WriteString(i.NodeID)
		b.WriteString(": ")
	}
	if i.Field != "" {
		b.WriteString(i.Field)
		b.WriteString(": ")
	}
	b.WriteString(i.Message)
	return b.String()
}

type ValidationError struct {
	WorkflowID string
	Issues     []ValidationIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	if e.WorkflowID == "" {
		return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
	}
	return fmt.Sprintf("workflow %s validation failed: %s", e.WorkflowID, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func NewValidationError(workflowID string, issues ...ValidationIssue) *ValidationError {
	return &ValidationError{WorkflowID: workflowID, Issues: issues}
}

type NodeExecutionError struct {
	ExecutionID string
	NodeID      string
	Kind        string
	Message     string
	Retryable   bool
	Attempt     int
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s failed on attempt %d (%s): %s", e.NodeID, e.Attempt, e.Kind, e.Message)
}

type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func NewStoreError(op, key string, err error) *StoreError {
	return &StoreError{Op: op, Key: key, Err: err}
}

type TimeoutError struct {
	ExecutionID string
	Limit       time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution %s exceeded timeout of %s", e.ExecutionID, e.Limit)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

type CancellationError struct {
	ExecutionID string
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("execution %s was canceled", e.ExecutionID)
}

func (e *CancellationError) Unwrap() error {
	return ErrCanceled
}

type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func NewConfigError(field string, err error) *ConfigError {
	return &ConfigError{Field: field, Err: err}
}

// ExecutionError is the persisted failure attached to an execution.
type ExecutionError struct {
	Kind    ErrorKind `json:"kind"`
	NodeID  string    `json:"node_id,omitempty"`
	Message string    `json:"message"`
}

func (e *ExecutionError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s at node %s: %s", e.Kind, e.NodeID, e.Message)
}

// KindOf maps an error onto the execution error taxonomy.
func KindOf(err error) ErrorKind {
	var (
		validationErr *ValidationError
		nodeErr       *NodeExecutionError
		storeErr      *StoreError
		timeoutErr    *TimeoutError
		cancelErr     *CancellationError
		execErr       *ExecutionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &execErr):
		return execErr.Kind
	case errors.As(err, &validationErr):
		return ErrorKindValidation
	case errors.As(err, &nodeErr):
		return ErrorKindNodeExecution
	case errors.As(err, &storeErr):
		return ErrorKindStore
	case errors.As(err, &timeoutErr), errors.Is(err, ErrTimeout):
		return ErrorKindTimeout
	case errors.As(err, &cancelErr), errors.Is(err, ErrCanceled):
		return ErrorKindCancellation
	default:
		return ErrorKindInternal
	}
}

func IsAlreadyStarted(err error) bool {
	return errors.Is(err, ErrAlreadyStarted)
}

func IsNotStarted(err error) bool {
	return errors.Is(err, ErrNotStarted)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func IsInvalidConfig(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

func IsStoreError(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr)
}
