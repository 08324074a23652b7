package utils

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

var (
	idPattern            = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	queueNamePattern     = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	definitionKeyPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.:-]*$`)
)

const (
	maxIDLength   = 64
	maxNameLength = 128
)

// SanitizeString 清理字符串,转义 HTML 并移除控制字符
func SanitizeString(input string) string {
	sanitized := html.EscapeString(input)

	// 保留换行符和制表符
	var result strings.Builder
	for _, r := range sanitized {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		result.WriteRune(r)
	}

	return result.String()
}

// ValidateTaskID 验证任务 ID 格式
func ValidateTaskID(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if len(id) > maxIDLength {
		return ErrIDTooLong
	}
	if !idPattern.MatchString(id) {
		return ErrInvalidIDFormat
	}
	return nil
}

// ValidateQueueName 验证队列名称（小写字母、数字、连字符、下划线）
func ValidateQueueName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > maxNameLength {
		return ErrNameTooLong
	}
	if !queueNamePattern.MatchString(name) {
		return ErrInvalidQueueName
	}
	return nil
}

// ValidateProcessDefinitionKey 验证流程定义 key
func ValidateProcessDefinitionKey(key string) error {
	if key == "" {
		return ErrEmptyName
	}
	if len(key) > maxNameLength {
		return ErrNameTooLong
	}
	if !definitionKeyPattern.MatchString(key) {
		return ErrInvalidDefinitionKey
	}
	return nil
}

// TrimAndValidate 去除首尾空白,检查长度后清理危险字符
func TrimAndValidate(s string, maxLen int) (string, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", ErrEmptyString
	}
	if maxLen > 0 && len(trimmed) > maxLen {
		return "", ErrStringTooLong
	}
	return SanitizeString(trimmed), nil
}

// 错误定义
var (
	ErrEmptyName            = &ValidationError{Code: "EMPTY_NAME", Message: "name cannot be empty"}
	ErrNameTooLong          = &ValidationError{Code: "NAME_TOO_LONG", Message: "name exceeds maximum length"}
	ErrInvalidQueueName     = &ValidationError{Code: "INVALID_QUEUE_NAME", Message: "queue name contains invalid characters"}
	ErrInvalidDefinitionKey = &ValidationError{Code: "INVALID_DEFINITION_KEY", Message: "process definition key contains invalid characters"}
	ErrEmptyID              = &ValidationError{Code: "EMPTY_ID", Message: "id cannot be empty"}
	ErrInvalidIDFormat      = &ValidationError{Code: "INVALID_ID_FORMAT", Message: "id contains invalid characters"}
	ErrIDTooLong            = &ValidationError{Code: "ID_TOO_LONG", Message: "id exceeds maximum length"}
	ErrEmptyString          = &ValidationError{Code: "EMPTY_STRING", Message: "string cannot be empty"}
	ErrStringTooLong        = &ValidationError{Code: "STRING_TOO_LONG", Message: "string exceeds maximum length"}
)

// ValidationError 验证错误
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
