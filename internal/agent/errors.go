package agent

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorCategory represents the type of error
type ErrorCategory string

const (
	// ErrorCategoryResolution when no locator strategy yielded an interactable control
	ErrorCategoryResolution ErrorCategory = "resolution"
	// ErrorCategoryInteraction when a control was found but the action did not take effect
	ErrorCategoryInteraction ErrorCategory = "interaction"
	// ErrorCategoryAmbiguous when no outcome signal was observed in time
	ErrorCategoryAmbiguous ErrorCategory = "ambiguous"
	// ErrorCategoryInsufficientFunds when the balance cannot cover a single game
	ErrorCategoryInsufficientFunds ErrorCategory = "insufficient_funds"
	// ErrorCategoryAuthentication for login failures
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	// ErrorCategoryRecognition for OCR errors
	ErrorCategoryRecognition ErrorCategory = "recognition"
	// ErrorCategoryBrowser for browser-related errors
	ErrorCategoryBrowser ErrorCategory = "browser"
	// ErrorCategoryStorage for S3/database errors
	ErrorCategoryStorage ErrorCategory = "storage"
	// ErrorCategoryConfig for invalid settings or directives
	ErrorCategoryConfig ErrorCategory = "config"
)

// ErrNotFound is returned when a locator matches nothing interactable.
var ErrNotFound = errors.New("element not found")

// CategorizedError wraps an error with category and retry info
type CategorizedError struct {
	Category  ErrorCategory
	Original  error
	Retryable bool
	Message   string
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Original == nil {
		return fmt.Sprintf("[%s] %s", e.Category, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Message, e.Original)
}

// Unwrap implements error unwrapping
func (e *CategorizedError) Unwrap() error {
	return e.Original
}

func newCategorized(category ErrorCategory, retryable bool, message string, err error) *CategorizedError {
	return &CategorizedError{
		Category:  category,
		Original:  err,
		Retryable: retryable,
		Message:   message,
	}
}

// NewResolutionError creates a resolution error; it always unwraps to ErrNotFound
func NewResolutionError(target string) *CategorizedError {
	return newCategorized(ErrorCategoryResolution, false, target, ErrNotFound)
}

// NewInteractionError creates an interaction error
func NewInteractionError(message string, err error) *CategorizedError {
	return newCategorized(ErrorCategoryInteraction, false, message, err)
}

// NewInsufficientFundsError creates an insufficient funds error
func NewInsufficientFundsError(message string) *CategorizedError {
	return newCategorized(ErrorCategoryInsufficientFunds, false, message, nil)
}

// NewAuthenticationError creates a login error
func NewAuthenticationError(message string, err error) *CategorizedError {
	return newCategorized(ErrorCategoryAuthentication, false, message, err)
}

// NewRecognitionError creates an OCR error
func NewRecognitionError(message string, err error) *CategorizedError {
	return newCategorized(ErrorCategoryRecognition, true, message, err)
}

// NewBrowserError creates a browser-related error
func NewBrowserError(message string, err error) *CategorizedError {
	return newCategorized(ErrorCategoryBrowser, true, message, err)
}

// NewStorageError creates a storage error
func NewStorageError(message string, err error) *CategorizedError {
	return newCategorized(ErrorCategoryStorage, true, message, err)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, err error) *CategorizedError {
	return newCategorized(ErrorCategoryConfig, false, message, err)
}

// CategoryOf returns the category of err, or "" when err is not categorized.
func CategoryOf(err error) ErrorCategory {
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}
	return ""
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	switch CategoryOf(err) {
	case ErrorCategoryInsufficientFunds, ErrorCategoryAuthentication, ErrorCategoryConfig:
		return true
	}
	return false
}

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	RetryableErrors []ErrorCategory
}

// DefaultRetryConfig returns sensible retry defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		RetryableErrors: []ErrorCategory{
			ErrorCategoryBrowser,
			ErrorCategoryStorage,
			ErrorCategoryRecognition,
		},
	}
}

// Retry executes a function with exponential backoff retry logic
func Retry(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err, config) {
			return err
		}

		if attempt < config.MaxAttempts-1 {
			select {
			case <-time.After(calculateDelay(attempt, config)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", config.MaxAttempts, lastErr)
}

// shouldRetry determines if an error is retryable
func shouldRetry(err error, config RetryConfig) bool {
	var catErr *CategorizedError
	if !errors.As(err, &catErr) || !catErr.Retryable {
		return false
	}

	for _, category := range config.RetryableErrors {
		if catErr.Category == category {
			return true
		}
	}
	return false
}

// calculateDelay calculates retry delay with exponential backoff
func calculateDelay(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= config.BackoffFactor
	}
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}

// sleep blocks for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
