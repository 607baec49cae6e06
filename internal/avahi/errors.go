package avahi

import (
	"errors"
	"fmt"
)

// Daemon error codes.
const (
	CodeOK              = 0
	CodeFailure         = -1
	CodeBadState        = -2
	CodeInvalidHostName = -3
	CodeInvalidDomain   = -4
	CodeNoNetwork       = -5
	CodeCollision       = -8
	CodeInvalidService  = -10
	CodeInvalidType     = -11
	CodeInvalidAddress  = -14
	CodeTimeout         = -15
	CodeTooManyClients  = -16
	CodeTooManyObjects  = -17
	CodeAccessDenied    = -20
	CodeDBusError       = -22
	CodeDisconnected    = -23
	CodeNoMemory        = -24
	CodeInvalidObject   = -25
	CodeNoDaemon        = -26
	CodeInvalidIface    = -27
	CodeInvalidProtocol = -28
	CodeInvalidFlags    = -29
	CodeNotFound        = -30
	CodeNotSupported    = -49
	CodeNotPermitted    = -50
	CodeInvalidArgument = -51
	CodeNoChange        = -53
)

var messages = map[int]string{
	CodeOK:              "OK",
	CodeFailure:         "Operation failed",
	CodeBadState:        "Bad state",
	CodeInvalidHostName: "Invalid host name",
	CodeInvalidDomain:   "Invalid domain name",
	CodeNoNetwork:       "No suitable network protocol available",
	CodeCollision:       "Local name collision",
	CodeInvalidService:  "Invalid service name",
	CodeInvalidType:     "Invalid service type",
	CodeInvalidAddress:  "Invalid address",
	CodeTimeout:         "Timeout reached",
	CodeTooManyClients:  "Too many clients",
	CodeTooManyObjects:  "Too many objects",
	CodeAccessDenied:    "Access denied",
	CodeDBusError:       "D-Bus error",
	CodeDisconnected:    "Daemon connection failed",
	CodeNoMemory:        "Memory exhausted",
	CodeInvalidObject:   "The object passed to this function was invalid",
	CodeNoDaemon:        "Daemon not running",
	CodeInvalidIface:    "Invalid interface index",
	CodeInvalidProtocol: "Invalid protocol specification",
	CodeInvalidFlags:    "Invalid flags",
	CodeNotFound:        "Not found",
	CodeNotSupported:    "Not supported",
	CodeNotPermitted:    "Operation not permitted",
	CodeInvalidArgument: "Invalid argument",
	CodeNoChange:        "No change",
}

// ErrorString returns the daemon's message for code. It matches the
// strings of the C library for the codes above.
func ErrorString(code int) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return "Invalid error code"
}

var (
	ErrHandleFreed = errors.New("avahi: handle already freed")
	ErrNullText    = errors.New("avahi: null string")
	ErrInvalidText = errors.New("avahi: string is not valid UTF-8")

	ErrNoDaemon = &Error{Code: CodeNoDaemon}
)

// Error is a failed call into the daemon's client library.
type Error struct {
	Op   string
	Code int
	Msg  string
}

// NewError builds an Error, taking the message from ErrorString when msg is empty.
func NewError(op string, code int, msg string) *Error {
	if msg == "" {
		msg = ErrorString(code)
	}
	return &Error{Op: op, Code: code, Msg: msg}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = ErrorString(e.Code)
	}
	if e.Op == "" {
		return fmt.Sprintf("avahi: %s (%d)", msg, e.Code)
	}
	return fmt.Sprintf("avahi: %s: %s (%d)", e.Op, msg, e.Code)
}

// Is matches errors by code, so errors.Is(err, ErrNoDaemon) works for any op.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}
