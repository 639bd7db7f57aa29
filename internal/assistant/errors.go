package assistant

import (
	"errors"
)

var (
	// ErrEmptyQuestion is returned when the trimmed question is empty.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrBusy is returned while a previous question is awaiting its reply.
	ErrBusy = errors.New("a question is already pending")
	// ErrClosed is returned when the widget has not been opened.
	ErrClosed = errors.New("assistant is closed")
)

// TransportFailure means the request could not be sent, the response was not
// received, the endpoint answered with a non-success status or the payload
// could not be decoded.
type TransportFailure struct {
	err error
}

func (e *TransportFailure) Error() string {
	return "transport failure: " + e.err.Error()
}

func (e *TransportFailure) Unwrap() error {
	return e.err
}

// NewTransportFailure wraps err as a transport failure.
func NewTransportFailure(err error) error {
	return &TransportFailure{err: err}
}

// ResponseShapeFailure means a success response arrived but carried no usable
// candidate text.
type ResponseShapeFailure struct {
	err error
}

func (e *ResponseShapeFailure) Error() string {
	return "response shape failure: " + e.err.Error()
}

func (e *ResponseShapeFailure) Unwrap() error {
	return e.err
}

// NewResponseShapeFailure wraps err as a response shape failure.
func NewResponseShapeFailure(err error) error {
	return &ResponseShapeFailure{err: err}
}

// IsTransportFailure reports whether err is a transport failure.
func IsTransportFailure(err error) bool {
	var tf *TransportFailure
	return errors.As(err, &tf)
}

// IsResponseShapeFailure reports whether err is a response shape failure.
func IsResponseShapeFailure(err error) bool {
	var sf *ResponseShapeFailure
	return errors.As(err, &sf)
}
