package llm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyInput is returned before any network call when there is nothing to report on.
	ErrEmptyInput = errors.New("没有选中任何提交记录，无法生成报告")
	// ErrEmptyCompletion is the cause of a GenerationError when the provider returned no text.
	ErrEmptyCompletion = errors.New("AI 返回内容为空")
	// ErrUnauthorized matches generation failures caused by a rejected credential (HTTP 401/403).
	ErrUnauthorized = errors.New("API Key 无效或无权限")
)

// MissingCredentialError means the routed provider has no usable credential.
type MissingCredentialError struct {
	Provider Provider
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("缺少 %s 的 API Key", e.Provider)
}

// GenerationError wraps any failure reported by a provider.
type GenerationError struct {
	Provider Provider
	Model    string
	Cause    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("生成失败 (%s/%s): %v", e.Provider, e.Model, e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// statusError is a non-success HTTP response from a provider.
type statusError struct {
	Code  int
	Body  string
	Cause error
}

func (e *statusError) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	if e.Body != "" {
		return fmt.Sprintf("API returned status %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("API returned status %d", e.Code)
}

func (e *statusError) Unwrap() error {
	return e.Cause
}

func (e *statusError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden)
}

// truncate keeps error bodies readable on one line.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
