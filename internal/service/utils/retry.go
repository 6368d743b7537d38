package utils

import (
	"time"
)

// Retry retries the given function up to maxAttempts with exponential backoff.
// If the function returns nil, it stops retrying.
func Retry[T any](maxAttempts int, initialDelay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := initialDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt < maxAttempts {
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}
	return zero, lastErr
}

// RetryErr is Retry for functions with no result.
func RetryErr(maxAttempts int, initialDelay time.Duration, fn func() error) error {
	_, err := Retry(maxAttempts, initialDelay, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
