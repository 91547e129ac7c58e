package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind классифицирует ошибки ядра
type ErrorKind string

const (
	ErrKindValidation        ErrorKind = "validation_error"
	ErrKindNotFound          ErrorKind = "not_found"
	ErrKindIllegalTransition ErrorKind = "illegal_transition"
	ErrKindStorageUpload     ErrorKind = "storage_upload_error"
	ErrKindPersistence       ErrorKind = "persistence_error"
	ErrKindTransient         ErrorKind = "transient_unavailable"
)

// Error - типизированная ошибка ядра: вид, сообщение для вызывающей
// стороны и обернутая причина для отладки
type Error struct {
	kind  ErrorKind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Kind() ErrorKind {
	return e.kind
}

// HTTPStatus возвращает HTTP-статус для данного вида ошибки
func (e *Error) HTTPStatus() int {
	switch e.kind {
	case ErrKindValidation:
		return http.StatusBadRequest
	case ErrKindNotFound:
		return http.StatusNotFound
	case ErrKindIllegalTransition:
		return http.StatusConflict
	case ErrKindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// KindOf возвращает вид ошибки или пустую строку для нетипизированных ошибок
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return ""
}

func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{kind: ErrKindValidation, msg: fmt.Sprintf(format, args...)}
}

// NewNotFound сообщает об отсутствии работы, не раскрывая, существует ли
// она за пределами области видимости актора
func NewNotFound(id string) *Error {
	return &Error{kind: ErrKindNotFound, msg: fmt.Sprintf("paper %s not found", id)}
}

// NewIllegalTransition включает контекст допустимых переходов
func NewIllegalTransition(role Role, from Status, to Status) *Error {
	allowed := AllowedTransitions(role, from)
	if len(allowed) == 0 {
		return &Error{
			kind: ErrKindIllegalTransition,
			msg:  fmt.Sprintf("role %s has no transitions from status %s", role, from),
		}
	}
	return &Error{
		kind: ErrKindIllegalTransition,
		msg:  fmt.Sprintf("role %s cannot move paper from %s to %s (allowed: %v)", role, from, to, allowed),
	}
}

// NewStaleTransition сообщает о проигранной гонке: статус строки
// изменился между чтением и записью
func NewStaleTransition(expected Status) *Error {
	return &Error{
		kind: ErrKindIllegalTransition,
		msg:  fmt.Sprintf("paper status is no longer %s, transition aborted", expected),
	}
}

func NewStorageUploadError(kind DocumentKind, cause error) *Error {
	return &Error{
		kind:  ErrKindStorageUpload,
		msg:   fmt.Sprintf("failed to upload %s document", kind),
		cause: cause,
	}
}

func NewPersistenceError(cause error) *Error {
	return &Error{kind: ErrKindPersistence, msg: "failed to persist paper record", cause: cause}
}

func NewTransientError(cause error) *Error {
	return &Error{kind: ErrKindTransient, msg: "storage temporarily unavailable", cause: cause}
}
