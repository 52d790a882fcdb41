package source

import (
	"errors"
	"fmt"
)

// ErrorKind classifies retrieval failures
type ErrorKind int

const (
	SourceUnavailable ErrorKind = iota + 1
	SourceFailure
	MalformedRecord
	InvalidReference
	RemoteFailure
)

func (k ErrorKind) String() string {
	switch k {
	case SourceUnavailable:
		return "source unavailable"
	case SourceFailure:
		return "source error"
	case MalformedRecord:
		return "malformed record"
	case InvalidReference:
		return "invalid reference"
	case RemoteFailure:
		return "remote error"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is; they compare by Kind only.
var (
	ErrSourceUnavailable = &Error{Kind: SourceUnavailable}
	ErrSource            = &Error{Kind: SourceFailure}
	ErrMalformedRecord   = &Error{Kind: MalformedRecord}
	ErrInvalidReference  = &Error{Kind: InvalidReference}
	ErrRemote            = &Error{Kind: RemoteFailure}
)

// Error is returned by every source adapter.
type Error struct {
	Kind     ErrorKind
	Location string
	// Status carries the HTTP status text for RemoteFailure.
	Status string
	// Line is the 1-based output line for MalformedRecord.
	Line    int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg = e.Message
	}
	if e.Location != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Location)
	}
	if e.Status != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Status)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// RemoteStatus returns the HTTP status text carried by a RemoteFailure error, if any.
func RemoteStatus(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == RemoteFailure {
		return e.Status, true
	}
	return "", false
}
