package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidID  = errors.New("invalid meal id")
	ErrRejected   = errors.New("request rejected")
	ErrScanFailed = errors.New("label scan failed")
	ErrMalformed  = errors.New("malformed response")
)

// TransportError means no response was obtained.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-2xx response. Detail carries the server's explanation
// when the body provided one.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.Code)
}

// Message renders err the way the ledger records it: the server's detail when
// present, the error text otherwise. It returns "" for nil.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var se *StatusError
	if errors.As(err, &se) && se.Detail != "" {
		return se.Detail
	}
	return err.Error()
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// IsTransport reports whether err means the backend could not be reached.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
