package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSuperseded is the result of a request replaced by a newer one.
	ErrSuperseded = errors.New("request superseded by a newer request")

	// ErrNotRunning is returned when Submit is called before Run.
	ErrNotRunning = errors.New("session dispatcher is not running")

	// ErrEmptyText rejects requests without text.
	ErrEmptyText = errors.New("text must not be empty")

	// ErrNoVoice rejects requests without a voice id.
	ErrNoVoice = errors.New("no voice selected")

	// ErrInvalidScript is returned by ParseScript for malformed scripts.
	ErrInvalidScript = errors.New("invalid story script")
)

// User-facing messages kept as the session error.
const (
	MsgDecodeFailed = "Error decoding audio chunk"
	MsgMergeFailed  = "Error merging audio"
	MsgChannelLost  = "Synthesis channel closed"
)

// ChannelError is a failure reported by, or a loss of, the synthesis channel.
type ChannelError struct {
	Message string
	Closed  bool
}

func (e *ChannelError) Error() string {
	if e.Closed {
		return "synthesis channel closed"
	}
	return "synthesis failed: " + e.Message
}

// ErrorCode classifies session errors.
type ErrorCode string

const (
	CodeDecode       ErrorCode = "DECODE_FAILURE"
	CodeMerge        ErrorCode = "MERGE_FAILURE"
	CodeChannel      ErrorCode = "CHANNEL_FAILURE"
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
	CodeCanceled     ErrorCode = "CANCELED"
)

// Error is a session error with a code and optional context.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// NewError creates an Error.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds a key to the error context.
func (e *Error) WithContext(key string, value interface{}) *Error {
	e.Context[key] = value
	return e
}

// IsRetryable reports whether submitting the same request again may succeed.
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case CodeChannel, CodeCanceled:
		return true
	default:
		return false
	}
}

// Code returns the code of the first *Error in err's chain, or "".
func Code(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
