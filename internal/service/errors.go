package service

import (
	"errors"
	"fmt"
)

// ErrorKind 错误分类，handler 据此映射 HTTP 状态码
type ErrorKind string

const (
	KindValidation ErrorKind = "VALIDATION"
	KindNotFound   ErrorKind = "NOT_FOUND"
	KindForbidden  ErrorKind = "FORBIDDEN"
	KindIntegrity  ErrorKind = "INTEGRITY"
	KindBusy       ErrorKind = "BUSY"
)

// Error 业务错误
//
// Validation / NotFound / Forbidden 是调用方问题，不自动重试；
// Integrity 表示数据不变量被破坏，必须暴露出来，不做任何自动修正。
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func validationError(format string, args ...any) *Error {
	return newError(KindValidation, nil, format, args...)
}

func notFoundError(err error, format string, args ...any) *Error {
	return newError(KindNotFound, err, format, args...)
}

func forbiddenError(format string, args ...any) *Error {
	return newError(KindForbidden, nil, format, args...)
}

func integrityError(format string, args ...any) *Error {
	return newError(KindIntegrity, nil, format, args...)
}

// KindOf 返回错误分类，非业务错误返回空串
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind 判断 err 链上是否有指定分类的业务错误
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
