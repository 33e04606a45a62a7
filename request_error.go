package clustermsg

import (
	"errors"
	"syscall"

	"github.com/dermesser/clustermsg/transport"
)

type Status int

const (
	STATUS_OK Status = iota
	// Malformed rank set, rank out of range, bad fence parameters
	STATUS_INVALID_ARGUMENT
	// The matchtag pool could not satisfy a reservation
	STATUS_RESOURCE_EXHAUSTED
	// Unexpected payload or message type
	STATUS_PROTOCOL_ERROR
	// Send or receive failed; Errnum() carries the transport's code
	STATUS_TRANSPORT_ERROR
	// The response carried a non-zero error number
	STATUS_REMOTE_ERROR
	// Contribution to a fence that is already complete
	STATUS_OVERFLOW
)

var status_names = []string{
	"STATUS_OK",
	"STATUS_INVALID_ARGUMENT",
	"STATUS_RESOURCE_EXHAUSTED",
	"STATUS_PROTOCOL_ERROR",
	"STATUS_TRANSPORT_ERROR",
	"STATUS_REMOTE_ERROR",
	"STATUS_OVERFLOW",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(status_names) {
		return "STATUS_UNKNOWN"
	}
	return status_names[s]
}

/*
Error type returned by the RPC functions of a Handle. Status() classifies the failure; Errnum()
is the error number that would travel in a response message (EINVAL, EAGAIN, EPROTO, the
transport's or the remote's code, EOVERFLOW).
*/
type RequestError struct {
	status Status
	errnum syscall.Errno
	err    error
}

func newRequestError(status Status, errnum syscall.Errno, err error) *RequestError {
	return &RequestError{status: status, errnum: errnum, err: err}
}

func (e *RequestError) Error() string {
	if e.err != nil {
		return e.status.String() + ": " + e.err.Error()
	}
	return e.status.String() + ": " + e.errnum.Error()
}

func (e *RequestError) Status() Status {
	return e.status
}

func (e *RequestError) Errnum() syscall.Errno {
	return e.errnum
}

// Returns a human-readable message such as "resource temporarily unavailable".
func (e *RequestError) Message() string {
	if e.err != nil {
		return e.err.Error()
	}
	return e.errnum.Error()
}

func (e *RequestError) Unwrap() error {
	return e.err
}

/*
Returns the error number carried by err: the Errnum() of a RequestError, a wrapped
syscall.Errno, EAGAIN for transport.ErrWouldBlock, or EIO for anything else. 0 for nil.
*/
func ErrnumOf(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var rqerr *RequestError
	if errors.As(err, &rqerr) {
		return rqerr.errnum
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	if errors.Is(err, transport.ErrWouldBlock) {
		return syscall.EAGAIN
	}
	if errors.Is(err, transport.ErrClosed) {
		return syscall.ECONNRESET
	}
	return syscall.EIO
}

// Reports whether err is a RequestError with the given status.
func HasStatus(err error, status Status) bool {
	var rqerr *RequestError
	return errors.As(err, &rqerr) && rqerr.status == status
}

func statusOf(err error, fallback Status) Status {
	var rqerr *RequestError
	if errors.As(err, &rqerr) {
		return rqerr.status
	}
	return fallback
}

func transportError(err error) *RequestError {
	return newRequestError(STATUS_TRANSPORT_ERROR, ErrnumOf(err), err)
}
