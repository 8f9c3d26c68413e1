package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Connection errors (1xxx)
	ErrCodeConnectionFailed     ErrorCode = "RFLW1001"
	ErrCodeConnectionTimeout    ErrorCode = "RFLW1002"
	ErrCodeAuthenticationFailed ErrorCode = "RFLW1003"
	ErrCodeNetworkUnavailable   ErrorCode = "RFLW1004"
	ErrCodeInitialization       ErrorCode = "RFLW1005"

	// Configuration errors (2xxx)
	ErrCodeConfigNotFound   ErrorCode = "RFLW2001"
	ErrCodeConfigInvalid    ErrorCode = "RFLW2002"
	ErrCodeConfigMissing    ErrorCode = "RFLW2003"
	ErrCodeConfigPermission ErrorCode = "RFLW2004"

	// Warehouse SQL errors (3xxx)
	ErrCodeSQLSyntax         ErrorCode = "RFLW3001"
	ErrCodeSQLPermission     ErrorCode = "RFLW3002"
	ErrCodeSQLTimeout        ErrorCode = "RFLW3003"
	ErrCodeSQLTransaction    ErrorCode = "RFLW3004"
	ErrCodeSQLObjectNotFound ErrorCode = "RFLW3005"
	ErrCodeSQLExecution      ErrorCode = "RFLW3006"
	ErrCodeUnloadFailed      ErrorCode = "RFLW3007"
	ErrCodeNoResults         ErrorCode = "RFLW3008"

	// Storage and file errors (4xxx)
	ErrCodeObjectNotFound ErrorCode = "RFLW4001"
	ErrCodeStorageAccess  ErrorCode = "RFLW4002"
	ErrCodeFileNotFound   ErrorCode = "RFLW4003"
	ErrCodeFilePermission ErrorCode = "RFLW4004"
	ErrCodeFileOperation  ErrorCode = "RFLW4005"
	ErrCodeConvertFailed  ErrorCode = "RFLW4006"

	// Dashboard errors (5xxx)
	ErrCodeDashboardAuth     ErrorCode = "RFLW5001"
	ErrCodeFolderNotFound    ErrorCode = "RFLW5002"
	ErrCodeUploadFailed      ErrorCode = "RFLW5003"
	ErrCodeSignOutFailed     ErrorCode = "RFLW5004"
	ErrCodeDashboardResponse ErrorCode = "RFLW5005"

	// Validation errors (6xxx)
	ErrCodeValidationFailed ErrorCode = "RFLW6001"
	ErrCodeInvalidInput     ErrorCode = "RFLW6002"
	ErrCodeRequiredField    ErrorCode = "RFLW6003"
	ErrCodeUserInput        ErrorCode = "RFLW6004"

	// Security errors (7xxx)
	ErrCodeSecurityViolation  ErrorCode = "RFLW7001"
	ErrCodeEncryptionFailed   ErrorCode = "RFLW7002"
	ErrCodeCredentialsExpired ErrorCode = "RFLW7003"
	ErrCodeSecretNotFound     ErrorCode = "RFLW7004"

	// System errors (9xxx)
	ErrCodeInternal           ErrorCode = "RFLW9001"
	ErrCodeTimeout            ErrorCode = "RFLW9002"
	ErrCodeResourceExhausted  ErrorCode = "RFLW9003"
	ErrCodeServiceUnavailable ErrorCode = "RFLW9004"
	ErrCodeResultParsing      ErrorCode = "RFLW9005"
	ErrCodeMaxRetriesExceeded ErrorCode = "RFLW9006"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL" // System failure, requires immediate attention
	SeverityError    ErrorSeverity = "ERROR"    // Operation failed, but system continues
	SeverityWarning  ErrorSeverity = "WARNING"  // Operation succeeded with issues
	SeverityInfo     ErrorSeverity = "INFO"     // Informational, not an error
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Recoverable bool
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		Severity:    SeverityError,
		Context:     make(map[string]interface{}),
		Stack:       captureStack(),
		Timestamp:   time.Now(),
		Recoverable: false,
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	// If wrapping another AppError, inherit some properties
	if ae, ok := err.(*AppError); ok {
		for k, v := range ae.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsRecoverable marks the error as recoverable
func (e *AppError) AsRecoverable() *AppError {
	e.Recoverable = true
	return e
}

// captureStack captures the current stack trace
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common error constructors

// ConnectionError creates a warehouse connection error
func ConnectionError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeConnectionFailed, message).
		WithSeverity(SeverityError).
		WithSuggestions(
			"Check your network connection",
			"Verify the warehouse endpoint is accessible",
			"Check firewall settings",
		)
}

// ConfigError creates a configuration-related error
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"Run 'retflow setup' to reconfigure",
			"Refer to the configuration documentation",
		)
}

// SQLError creates an SQL execution error
func SQLError(message string, query string, cause error) *AppError {
	err := Wrap(cause, ErrCodeSQLSyntax, message).
		WithContext("query", truncateString(query, 200))

	if strings.Contains(message, "permission") || strings.Contains(message, "access denied") {
		err.Code = ErrCodeSQLPermission
		_ = err.WithSuggestions(
			"Check user permissions in the warehouse",
			"Verify the role has required privileges",
			"Contact your warehouse administrator",
		)
	} else if strings.Contains(message, "timeout") {
		err.Code = ErrCodeSQLTimeout
		_ = err.WithSuggestions(
			"Optimize the query for better performance",
			"Increase the query timeout setting",
			"Check warehouse compute capacity",
		)
	}

	return err
}

// StorageError creates an object storage error
func StorageError(message string, key string, cause error) *AppError {
	return Wrap(cause, ErrCodeStorageAccess, message).
		WithContext("object_key", key).
		WithSuggestions(
			"Verify the bucket and key exist",
			"Check the storage credentials authorize this operation",
		)
}

// DashboardError creates a dashboard server error carrying the response status
func DashboardError(message string, statusCode int, body string) *AppError {
	return New(ErrCodeDashboardResponse, message).
		WithContext("status_code", statusCode).
		WithContext("response", truncateString(body, 200))
}

// ValidationError creates a validation error
func ValidationError(field string, value interface{}, reason string) *AppError {
	return New(ErrCodeValidationFailed, fmt.Sprintf("Validation failed for %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value).
		WithSeverity(SeverityWarning).
		AsRecoverable()
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// truncateString truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
