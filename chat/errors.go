package chat

import "fmt"

// Error code space. Codes below 800000 are reported by the server and
// passed through verbatim; the 8001xx/8002xx range is produced by the
// client itself.
const (
	ErrInvalidInitialization       int64 = 800100
	ErrConnectionRequired          int64 = 800101
	ErrInvalidParameter            int64 = 800110
	ErrNetworkError                int64 = 800120
	ErrWrongChannelType            int64 = 800150
	ErrMarkAsReadRateLimitExceeded int64 = 800160
	ErrQueryInProgress             int64 = 800170
	ErrAckTimeout                  int64 = 800180
	ErrLoginTimeout                int64 = 800190
	ErrWebSocketConnectionClosed   int64 = 800200
	ErrWebSocketConnectionFailed   int64 = 800210
	ErrInternalServerError         int64 = 500901
)

// Error is the failure value delivered through completion callbacks.
// Every async operation resolves with either a result or exactly one
// non-nil *Error, never both.
type Error struct {
	Code    int64
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("chat error %d: %s", e.Code, e.Message)
}

// NewError builds an error value with an explicit code.
func NewError(code int64, message string) *Error {
	return &Error{Code: code, Message: message}
}

func newErrorf(code int64, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func errConnectionRequired() *Error {
	return NewError(ErrConnectionRequired, "connection required")
}

func errInvalidParameter(msg string) *Error {
	return NewError(ErrInvalidParameter, msg)
}
