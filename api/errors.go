// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared by every sockwire component.

package api

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by the stage that produced it.
type Kind int

const (
	KindUnknown Kind = iota
	KindResolution
	KindChannelCreation
	KindBind
	KindListen
	KindConnect
	KindAccept
	KindTransport
	KindClosed
	KindNotSupported
)

var kindNames = [...]string{
	KindUnknown:         "unknown",
	KindResolution:      "resolution",
	KindChannelCreation: "channel creation",
	KindBind:            "bind",
	KindListen:          "listen",
	KindConnect:         "connect",
	KindAccept:          "accept",
	KindTransport:       "transport",
	KindClosed:          "closed",
	KindNotSupported:    "not supported",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Sentinels, one per Kind. Match with errors.Is.
var (
	ErrResolution      = errors.New("host resolution failed")
	ErrChannelCreation = errors.New("channel creation failed")
	ErrBind            = errors.New("bind failed")
	ErrListen          = errors.New("listen failed")
	ErrConnect         = errors.New("connect failed")
	ErrAccept          = errors.New("accept failed")
	ErrTransport       = errors.New("transport failure")
	ErrClosed          = errors.New("transport is closed")
	ErrNotSupported    = errors.New("operation not supported")
)

var sentinels = map[Kind]error{
	KindResolution:      ErrResolution,
	KindChannelCreation: ErrChannelCreation,
	KindBind:            ErrBind,
	KindListen:          ErrListen,
	KindConnect:         ErrConnect,
	KindAccept:          ErrAccept,
	KindTransport:       ErrTransport,
	KindClosed:          ErrClosed,
	KindNotSupported:    ErrNotSupported,
}

// Error is a structured failure carrying the operation, its kind and
// the underlying cause (usually a unix.Errno).
type Error struct {
	Kind    Kind
	Op      string
	Err     error
	Context map[string]any
}

// NewError builds an Error of the given kind.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if len(e.Context) > 0 {
		msg += fmt.Sprintf(" (context: %+v)", e.Context)
	}
	return msg
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return KindUnknown
}

// Retryable reports whether a caller-side retry loop may try again.
// Only connection establishment failures qualify.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConnect, KindAccept:
		return true
	}
	return false
}
