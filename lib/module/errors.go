package module

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type of the SDK. It wraps a code (of type ErrCode) and
// a message. Two errors match with errors.Is if their codes are equal.
type Error struct {
	Code ErrCode // The error code
	Msg  string  // The error message
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Is reports whether target is an *Error with the same code
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a CodeUser error with a formatted message
func Errorf(format string, args ...any) *Error {
	return NewError(CodeUser, fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Error Codes
// --------------------------------------------------------------------------

// ErrCode classifies SDK errors
type ErrCode uint64

const (
	CodeSuccess    ErrCode = iota // 0: no error
	CodeProtocol                  // 1: the store broke the ABI contract, fatal
	CodeUser                      // 2: application error, becomes an error reply
	CodeWrongArity                // 3: wrong number of arguments
	CodeWrongType                 // 4: value or payload of the wrong type
	CodeNotFound                  // 5: unknown timer id, consumed token
	CodeUnhashable                // 6: reply kind cannot be a map or set key
	CodeAborted                   // 7: blocking call was aborted
)

func (c ErrCode) String() string {
	switch c {
	case CodeSuccess:
		return "Success"
	case CodeProtocol:
		return "ProtocolViolation"
	case CodeUser:
		return "UserError"
	case CodeWrongArity:
		return "WrongArity"
	case CodeWrongType:
		return "WrongType"
	case CodeNotFound:
		return "NotFound"
	case CodeUnhashable:
		return "Unhashable"
	case CodeAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Sentinel errors for errors.Is checks
var (
	ErrWrongArity = NewError(CodeWrongArity, "wrong number of arguments")
	ErrNotFound   = NewError(CodeNotFound, "not found")
	ErrWrongType  = NewError(CodeWrongType, "wrong type")
	ErrAborted    = NewError(CodeAborted, "aborted")
)

// --------------------------------------------------------------------------
// Conversion at the ABI boundary
// --------------------------------------------------------------------------

// errorFromReply maps the text of an error reply to an *Error. The first word
// of the text is the error code of the store.
func errorFromReply(msg string) *Error {
	code := CodeUser
	switch firstWord(msg) {
	case "WRONGTYPE":
		code = CodeWrongType
	case "ABORTED":
		code = CodeAborted
	default:
		if strings.HasPrefix(msg, "ERR wrong number of arguments") {
			code = CodeWrongArity
		}
	}
	return &Error{Code: code, Msg: msg}
}

// replyText returns the error reply sent to a client for err
func replyText(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "ERR " + err.Error()
	}
	if hasErrorCode(e.Msg) {
		return e.Msg
	}

	switch e.Code {
	case CodeWrongType:
		return "WRONGTYPE " + e.Msg
	case CodeAborted:
		return "ABORTED " + e.Msg
	default:
		return "ERR " + e.Msg
	}
}

// hasErrorCode reports whether msg starts with an upper case code word
func hasErrorCode(msg string) bool {
	w := firstWord(msg)
	if len(w) < 2 || len(w) == len(msg) {
		return false
	}
	for _, r := range w {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func firstWord(msg string) string {
	if i := strings.IndexByte(msg, ' '); i >= 0 {
		return msg[:i]
	}
	return msg
}

// protocolViolation logs at panic level and panics with a CodeProtocol error
func protocolViolation(format string, args ...any) {
	err := NewError(CodeProtocol, fmt.Sprintf(format, args...))
	Logger.Panicf("%s", err.Msg)
	panic(err)
}
