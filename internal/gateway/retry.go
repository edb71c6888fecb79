package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// retryConfig holds the backoff schedule for transport-level retries against
// the inference server.
var retryConfig = struct {
	delays  []time.Duration
	ceiling time.Duration
}{
	delays:  []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, 1000 * time.Millisecond},
	ceiling: 2 * time.Second,
}

// isTransportError reports whether err looks like a connection-level failure
// (refused connection, reset, DNS, timeout) as opposed to a well-formed
// non-2xx response or a decode failure. Only transport errors are safe to
// retry blindly; a malformed or semantically-rejected request will fail the
// same way every time.
func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == ErrUnavailable || ge.Kind == ErrTimeout
	}
	return false
}

// withConnectionRetry retries fn up to maxRetries additional times on
// transport errors, with exponential backoff capped at retryConfig.ceiling.
// Non-transport errors return immediately on the first attempt.
func withConnectionRetry[T any](ctx context.Context, operation string, maxRetries int, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil || !isTransportError(err) {
		return result, err
	}

	for i := 0; i < maxRetries; i++ {
		delay := retryConfig.ceiling
		if i < len(retryConfig.delays) {
			delay = retryConfig.delays[i]
		}
		if delay > retryConfig.ceiling {
			delay = retryConfig.ceiling
		}

		slog.Warn("[gateway] transport error, retrying",
			"operation", operation,
			"attempt", i+2,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			var zero T
			return zero, newError(ErrTimeout, operation, "", fmt.Errorf("context cancelled during retry: %w", ctx.Err()))
		case <-time.After(delay):
		}

		result, err = fn()
		if err == nil {
			slog.Info("[gateway] retry succeeded", "operation", operation, "attempt", i+2)
			return result, nil
		}
		if !isTransportError(err) {
			return result, err
		}
	}

	slog.Error("[gateway] retries exhausted", "operation", operation, "attempts", maxRetries+1)
	return result, err
}

// withGenerationRetry retries fn at most once on a transport error. Generation
// calls are expensive (up to the accurate-tier timeout), so unlike connection
// probes they get a single extra attempt rather than a full backoff ladder.
func withGenerationRetry[T any](ctx context.Context, operation string, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil || !isTransportError(err) {
		return result, err
	}

	slog.Warn("[gateway] generation transport error, retrying once", "operation", operation, "error", err.Error())

	select {
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%s: context cancelled during retry: %w", operation, ctx.Err())
	case <-time.After(retryConfig.delays[0]):
	}

	return fn()
}
