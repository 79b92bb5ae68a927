package provider

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindThrottling ErrorKind = "throttling"
	KindPermission ErrorKind = "permission"
	KindInvalid    ErrorKind = "invalid"
	KindOther      ErrorKind = "other"
)

// APIError is a failed provider call.
type APIError struct {
	Service   string
	Operation string
	Code      string
	Message   string
	Kind      ErrorKind
	Err       error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code == "" {
		return fmt.Sprintf("%s %s: %s", e.Service, e.Operation, msg)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Service, e.Operation, e.Code, msg)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is maps not-found and conflict errors onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrAlreadyExists:
		return e.Kind == KindConflict
	}
	return false
}

// IsNotFound reports whether err means the resource does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists reports whether err means the resource already exists.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsThrottling reports whether err is a rate limit rejection.
func IsThrottling(err error) bool {
	return kindOf(err) == KindThrottling
}

// Code returns the provider error code carried by err, if any.
func Code(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

func kindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// Remediation returns a human readable hint for errors the operator can fix,
// or "" when there is none.
func Remediation(err error) string {
	switch kindOf(err) {
	case KindPermission:
		return "insufficient permissions: check the credentials in use and the actions allowed by their policies"
	case KindThrottling:
		return "request rate exceeded: retry later or increase publish.interval"
	case KindInvalid:
		return "the provider rejected the request: check the generated document with 'apideploy spec generate'"
	}
	return ""
}
