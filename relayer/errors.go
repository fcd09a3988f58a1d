package relayer

import "fmt"

// JSON-RPC error codes surfaced by the relayer methods.
const (
	CodeInvalidParams         = -32602
	CodeInternalError         = -32603
	CodeInvalidSignature      = -4201
	CodeUnsupportedToken      = -4202
	CodeUnsupportedCapability = -4209
	CodeSimulationFailed      = -4211
)

// Error is a taxonomy error carrying its JSON-RPC code. It implements the
// geth rpc server's Error and DataError interfaces so codes and revert
// payloads travel to the client verbatim.
type Error struct {
	code int
	msg  string
	data interface{}
}

func (e *Error) Error() string          { return e.msg }
func (e *Error) ErrorCode() int         { return e.code }
func (e *Error) ErrorData() interface{} { return e.data }

func errInvalidParams(format string, args ...interface{}) *Error {
	return &Error{code: CodeInvalidParams, msg: fmt.Sprintf(format, args...)}
}

func errInvalidSignature(format string, args ...interface{}) *Error {
	return &Error{code: CodeInvalidSignature, msg: fmt.Sprintf(format, args...)}
}

func errUnsupportedToken(format string, args ...interface{}) *Error {
	return &Error{code: CodeUnsupportedToken, msg: fmt.Sprintf(format, args...)}
}

func errUnsupportedCapability(format string, args ...interface{}) *Error {
	return &Error{code: CodeUnsupportedCapability, msg: fmt.Sprintf(format, args...)}
}

func errSimulationFailed(msg string, data interface{}) *Error {
	return &Error{code: CodeSimulationFailed, msg: msg, data: data}
}

func errInternal(format string, args ...interface{}) *Error {
	return &Error{code: CodeInternalError, msg: fmt.Sprintf(format, args...)}
}

// NewInvalidParamsError is for the RPC facade's own parse failures.
func NewInvalidParamsError(format string, args ...interface{}) error {
	return errInvalidParams(format, args...)
}

// NewUnsupportedTokenError is for the RPC facade's token shape checks.
func NewUnsupportedTokenError(format string, args ...interface{}) error {
	return errUnsupportedToken(format, args...)
}
