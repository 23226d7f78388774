// internal/errs/errors.go
package errs

import (
	"errors"
	"fmt"
)

// Kind 划分了整个系统的错误分类。
// 同步命令入口只会向调用方暴露 Validation/NotFound/InvalidState；
// 库存不足通过失败事件异步传播；基础设施错误由消费端按可重试处理。
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindInvalidState
	KindInsufficientInventory
	KindTransientInfra
	KindPoisonMessage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindInsufficientInventory:
		return "insufficient_inventory"
	case KindTransientInfra:
		return "transient_infra"
	case KindPoisonMessage:
		return "poison_message"
	default:
		return "unknown"
	}
}

// Error 是带分类的领域/基础设施错误。
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Kind() Kind { return e.kind }

// New 创建一个指定分类的错误。
func New(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap 在保留底层错误的同时附加分类信息。cause 为 nil 时返回 nil。
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	if cause == nil {
		return nil
	}
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func InvalidState(format string, args ...any) *Error {
	return New(KindInvalidState, format, args...)
}

func InsufficientInventory(format string, args ...any) *Error {
	return New(KindInsufficientInventory, format, args...)
}

func TransientInfra(cause error, format string, args ...any) *Error {
	return &Error{kind: KindTransientInfra, msg: fmt.Sprintf(format, args...), cause: cause}
}

func PoisonMessage(cause error, format string, args ...any) *Error {
	return &Error{kind: KindPoisonMessage, msg: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf 返回错误的分类，非本包错误返回 KindUnknown。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

func IsValidation(err error) bool   { return IsKind(err, KindValidation) }
func IsNotFound(err error) bool     { return IsKind(err, KindNotFound) }
func IsInvalidState(err error) bool { return IsKind(err, KindInvalidState) }

// Retryable 决定消费端是否应该对该错误重试。
// 已知的领域错误重试没有意义；未分类的错误保守地按可重试处理，
// 交给退避上限兜底。
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindInvalidState,
		KindInsufficientInventory, KindPoisonMessage:
		return false
	default:
		return true
	}
}
