package errs

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Error 错误类型（带堆栈）
type Error struct {
	Code    ErrorCode
	Message string
	Stack   []string // 调用堆栈
	Cause   error    // 原始错误
}

// ErrorCode 错误码
type ErrorCode string

const (
	ErrCodeInvalidParam   ErrorCode = "INVALID_PARAM"
	ErrCodeNullArgument   ErrorCode = "NULL_ARGUMENT"
	ErrCodeIllegalState   ErrorCode = "ILLEGAL_STATE"
	ErrCodeNotSupported   ErrorCode = "NOT_SUPPORTED"
	ErrCodeSessionFactory ErrorCode = "SESSION_FACTORY"
	ErrCodeCreateSession  ErrorCode = "CREATE_SESSION"
	ErrCodeSessionClosed  ErrorCode = "SESSION_CLOSED"
	ErrCodeTransaction    ErrorCode = "TRANSACTION"
	ErrCodeTimeout        ErrorCode = "TIMEOUT"
	ErrCodeDriver         ErrorCode = "DRIVER"
	ErrCodeConfig         ErrorCode = "CONFIG"
	ErrCodeInternal       ErrorCode = "INTERNAL"
)

// Error 接口实现
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *Error) Unwrap() error {
	return e.Cause
}

// StackTrace 返回调用堆栈
func (e *Error) StackTrace() []string {
	return e.Stack
}

// NewError 创建错误
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStackTrace(),
		Cause:   cause,
	}
}

// Errorf 按格式创建错误
func Errorf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStackTrace(),
	}
}

// WrapError 包装错误
func WrapError(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}

	// 如果已经是我们的错误类型，保留原有堆栈
	if e, ok := err.(*Error); ok {
		return &Error{
			Code:    code,
			Message: message,
			Stack:   e.Stack,
			Cause:   e,
		}
	}

	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStackTrace(),
		Cause:   err,
	}
}

// captureStackTrace 捕获调用堆栈
func captureStackTrace() []string {
	pc := make([]uintptr, 32)
	n := runtime.Callers(3, pc) // 跳过 Callers / captureStackTrace / 构造函数

	if n == 0 {
		return []string{}
	}

	frames := runtime.CallersFrames(pc[:n])
	stack := make([]string, 0, n)

	for {
		frame, more := frames.Next()

		fn := frame.Function
		file := frame.File
		if idx := strings.LastIndex(file, "/"); idx != -1 {
			file = file[idx+1:]
		}
		if idx := strings.LastIndex(fn, "/"); idx != -1 {
			fn = fn[idx+1:]
		}
		stack = append(stack, fmt.Sprintf("  at %s (%s:%d)", fn, file, frame.Line))

		if !more {
			break
		}
	}

	return stack
}

// IsErrorCode 检查错误链中是否存在指定错误码
func IsErrorCode(err error, code ErrorCode) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetErrorCode 获取最外层错误码
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
