// Package observability provides the structured logger the pipeline
// stages write through.
package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = map[LogLevel]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Service   string                 `json:"service"`
	Host      string                 `json:"host,omitempty"`
}

// Logger provides structured JSON logging
type Logger struct {
	mu       sync.Mutex
	level    LogLevel
	output   io.Writer
	fields   map[string]interface{}
	service  string
	hostname string
}

// LoggerConfig contains logger configuration
type LoggerConfig struct {
	Level   LogLevel
	Output  io.Writer
	Service string
}

// NewLogger creates a new logger instance
func NewLogger(config LoggerConfig) *Logger {
	hostname, _ := os.Hostname()

	if config.Output == nil {
		config.Output = os.Stderr
	}
	if config.Service == "" {
		config.Service = "retflow"
	}

	return &Logger{
		level:    config.Level,
		output:   config.Output,
		fields:   make(map[string]interface{}),
		service:  config.Service,
		hostname: hostname,
	}
}

// WithField returns a new logger with an additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a new logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &Logger{
		level:    l.level,
		output:   l.output,
		fields:   newFields,
		service:  l.service,
		hostname: l.hostname,
	}
}

// SetLevel changes the minimum level written
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) log(level LogLevel, msg string, fields []map[string]interface{}) {
	if level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     levelNames[level],
		Message:   msg,
		Service:   l.service,
		Host:      l.hostname,
	}

	if len(l.fields) > 0 || len(fields) > 0 {
		merged := make(map[string]interface{}, len(l.fields))
		for k, v := range l.fields {
			merged[k] = v
		}
		for _, extra := range fields {
			for k, v := range extra {
				merged[k] = v
			}
		}
		entry.Fields = merged
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: failed to encode entry: %v\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write(append(data, '\n'))
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(DebugLevel, msg, fields)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(InfoLevel, msg, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(WarnLevel, msg, fields)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(ErrorLevel, msg, fields)
}

var (
	defaultLogger *Logger
	defaultOnce   sync.Once
)

// Default returns the process-wide logger, writing to stderr at info
// level (debug when RETFLOW_DEBUG is set).
func Default() *Logger {
	defaultOnce.Do(func() {
		level := InfoLevel
		if os.Getenv("RETFLOW_DEBUG") != "" {
			level = DebugLevel
		}
		defaultLogger = NewLogger(LoggerConfig{Level: level})
	})
	return defaultLogger
}
