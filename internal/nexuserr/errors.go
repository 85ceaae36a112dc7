// Package nexuserr defines the error taxonomy shared by every subsystem
// and the single point where a Code turns into an HTTP status in the
// router.
package nexuserr

import (
	"errors"
	"fmt"
)

// Code enumerates the error taxonomy.
type Code string

const (
	CodeBadRequest          Code = "bad_request"
	CodePackageNotFound     Code = "package_not_found"
	CodeVersionNotFound     Code = "version_not_found"
	CodeFileNotFound        Code = "file_not_found"
	CodeUpstreamUnavailable Code = "upstream_unavailable"
	CodeStorageUnavailable  Code = "storage_unavailable"
	CodeInvalidManifest     Code = "invalid_manifest"
)

// Error wraps a Code with a human message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error carrying an upstream cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Is reports whether err carries the given code, unwrapping as needed.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// HTTPStatus maps a Code to the response status the router should send.
// StorageUnavailable has no direct mapping here because callers treat
// it as a cache miss or a swallowed write failure, never surfacing it
// as a status on its own.
func HTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return 400
	case CodePackageNotFound, CodeVersionNotFound, CodeFileNotFound:
		return 404
	case CodeUpstreamUnavailable:
		return 502
	case CodeInvalidManifest:
		return 500
	default:
		return 500
	}
}
