package protocol

import (
	"encoding/json"
	"fmt"
)

// Версия и методы протокола A2G (JSON-RPC 2.0)
const (
	Version = "2.0"

	MethodIntent   = "a2g/intent"
	MethodReport   = "a2g/report"
	MethodRegister = "a2g/register"
)

// Коды ошибок протокола. Стандартные JSON-RPC плюс доменный диапазон -32000..-32004.
const (
	CodeParseError         = -32700
	CodeInvalidRequest     = -32600
	CodeMethodNotFound     = -32601
	CodeInvalidParams      = -32602
	CodePolicyViolation    = -32000
	CodeExecutionError     = -32001
	CodeRegistrationFailed = -32002
	CodeCapabilityExhaust  = -32003
	CodeSessionExpired     = -32004
)

// Request — входной конверт. ID оставляем сырым: агенты шлют и строки, и числа.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response — исходящий конверт
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError — конструктор для краткости в хендлерах
func NewError(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ParseRequest валидирует конверт. Ошибки здесь — это -32700/-32600,
// до разбора params дело еще не дошло.
func ParseRequest(raw []byte) (*Request, *Error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, NewError(CodeParseError, "parse error: %v", err)
	}
	if req.JSONRPC != Version {
		return nil, NewError(CodeInvalidRequest, "unsupported jsonrpc version %q", req.JSONRPC)
	}
	if req.Method == "" {
		return nil, NewError(CodeInvalidRequest, "method is required")
	}
	return &req, nil
}

// OK собирает успешный ответ с тем же ID
func OK(id json.RawMessage, result interface{}) *Response {
	return &Response{JSONRPC: Version, Result: result, ID: id}
}

// Fail собирает ответ-ошибку с тем же ID
func Fail(id json.RawMessage, e *Error) *Response {
	return &Response{JSONRPC: Version, Error: e, ID: id}
}
