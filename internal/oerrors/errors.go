// Package oerrors defines the OpenSRF error taxonomy of spec §7: Config,
// Transport, Protocol, Service, Timeout, and Worker-supervisor errors.
// Config, Transport, Protocol, Timeout and Worker errors share the *Error
// type, tagged by Kind and checked with Is; ServiceException and
// ProtocolException are distinct types for errors.As. Callers need not
// match strings.
package oerrors

import "fmt"

// Kind identifies which of the §7 error categories an error belongs to.
type Kind string

const (
	KindConfig   Kind = "config"
	KindTransport Kind = "transport"
	KindProtocol Kind = "protocol"
	KindService  Kind = "service"
	KindTimeout  Kind = "timeout"
	KindWorker   Kind = "worker-supervisor"
)

// Error is the common shape for every OpenSRF error: a kind, a message,
// and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func new_(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NewConfig wraps a fatal startup configuration error.
func NewConfig(message string, cause error) *Error { return new_(KindConfig, message, cause) }

// NewTransport wraps a send/recv failure or unknown-recipient error.
func NewTransport(message string, cause error) *Error { return new_(KindTransport, message, cause) }

// NewProtocol wraps an unknown status code or malformed message error.
func NewProtocol(message string, cause error) *Error { return new_(KindProtocol, message, cause) }

// NewTimeout wraps a local wait-expired or STATUS 408 condition.
func NewTimeout(message string, cause error) *Error { return new_(KindTimeout, message, cause) }

// NewWorker wraps a write-to-child failure observed by the controller.
func NewWorker(message string, cause error) *Error { return new_(KindWorker, message, cause) }

// Is reports whether err (or something it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Cause
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// ServiceException is the client-visible error for STATUS 404/500 and
// handler exceptions (spec §4.3, §7): it carries the statusCode so
// callers can distinguish METHOD_NOT_FOUND from an internal failure.
type ServiceException struct {
	StatusCode int
	Status     string
	Method     string
}

func (e *ServiceException) Error() string {
	return fmt.Sprintf("service exception (%d): %s", e.StatusCode, e.Status)
}

// NewServiceException builds a ServiceException for the given status payload.
func NewServiceException(statusCode int, status, method string) *ServiceException {
	return &ServiceException{StatusCode: statusCode, Status: status, Method: method}
}

// ProtocolException surfaces an unknown status code or malformed message
// (spec §4.2 "Unknown status code: surface as protocol exception").
type ProtocolException struct {
	Detail string
}

func (e *ProtocolException) Error() string {
	return fmt.Sprintf("protocol exception: %s", e.Detail)
}

// NewProtocolException builds a ProtocolException.
func NewProtocolException(detail string) *ProtocolException {
	return &ProtocolException{Detail: detail}
}
