package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents transient network/navigation errors
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeTimeout represents bounded waits that elapsed
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeCapacity represents page-slot acquisition timeouts
	ErrorTypeCapacity ErrorType = "capacity"
	// ErrorTypeSessionFatal represents errors that kill a browser session
	ErrorTypeSessionFatal ErrorType = "session_fatal"
	// ErrorTypeParsing represents HTML parsing/extraction errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeOutput represents output-sink errors
	ErrorTypeOutput ErrorType = "output"
	// ErrorTypeConfiguration represents setup errors that abort the run
	ErrorTypeConfiguration ErrorType = "configuration"
)

// CrawlError represents a crawler-specific error
type CrawlError struct {
	Type      ErrorType
	Component string
	Message   string
	Err       error
	Time      time.Time
}

// Error implements the error interface
func (e *CrawlError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *CrawlError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the unit of work may be attempted again
func (e *CrawlError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeCapacity, ErrorTypeSessionFatal:
		return true
	default:
		return false
	}
}

// New creates a new CrawlError
func New(errType ErrorType, component, message string, err error) *CrawlError {
	return &CrawlError{
		Type:      errType,
		Component: component,
		Message:   message,
		Err:       err,
		Time:      time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(component, message string, err error) *CrawlError {
	return New(ErrorTypeNetwork, component, message, err)
}

// NewTimeout creates a new timeout error
func NewTimeout(component, message string, err error) *CrawlError {
	return New(ErrorTypeTimeout, component, message, err)
}

// NewCapacity creates a new capacity error
func NewCapacity(component, message string) *CrawlError {
	return New(ErrorTypeCapacity, component, message, nil)
}

// NewSessionFatal creates a new session-fatal error
func NewSessionFatal(component, message string, err error) *CrawlError {
	return New(ErrorTypeSessionFatal, component, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(component, message string, err error) *CrawlError {
	return New(ErrorTypeParsing, component, message, err)
}

// NewCache creates a new cache error
func NewCache(component, message string, err error) *CrawlError {
	return New(ErrorTypeCache, component, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(component, message string, err error) *CrawlError {
	return New(ErrorTypePublisher, component, message, err)
}

// NewOutput creates a new output error
func NewOutput(component, message string, err error) *CrawlError {
	return New(ErrorTypeOutput, component, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *CrawlError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// IsRetryable reports whether err (or anything it wraps) is retryable
func IsRetryable(err error) bool {
	var ce *CrawlError
	if errors.As(err, &ce) {
		return ce.IsRetryable()
	}
	return false
}

// IsSessionFatal reports whether err indicates a dead browser session
func IsSessionFatal(err error) bool {
	var ce *CrawlError
	if errors.As(err, &ce) {
		return ce.Type == ErrorTypeSessionFatal
	}
	return false
}

// IsCapacity reports whether err is a page-slot acquisition timeout
func IsCapacity(err error) bool {
	var ce *CrawlError
	if errors.As(err, &ce) {
		return ce.Type == ErrorTypeCapacity
	}
	return false
}

// IsConfiguration reports whether err is a setup error that should abort the run
func IsConfiguration(err error) bool {
	var ce *CrawlError
	if errors.As(err, &ce) {
		return ce.Type == ErrorTypeConfiguration
	}
	return false
}
