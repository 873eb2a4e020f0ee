package util

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("resource not found")
	ErrPermissionDenied        = errors.New("permission denied")
	ErrUnauthenticated         = errors.New("authentication required")
	ErrAttemptLimitExceeded    = errors.New("maximum number of attempts reached")
	ErrAttemptAlreadyCompleted = errors.New("attempt already completed")
	ErrExternalService         = errors.New("external service unavailable")
	ErrRateLimited             = errors.New("daily message limit reached")
)

// ValidationError 请求参数不合法，在任何写操作之前返回
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundf 包装 ErrNotFound 并附带资源描述
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}
