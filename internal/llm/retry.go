package llm

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"time"
)

// retryHTTP wraps an operation with small exponential backoff retries for transient failures.
// It retries when:
// - the op returns a retriable error (network timeout), or
// - the returned HTTP status code is retriable (429, 408)
// The op should perform the HTTP request and return the response and/or an error.
func retryHTTP(ctx context.Context, maxAttempts int, baseDelay time.Duration, op func() (*http.Response, error)) (*http.Response, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := op()
		if err == nil && !isRetriableStatus(resp.StatusCode) {
			return resp, nil
		}

		shouldRetry := false
		if err != nil {
			shouldRetry = isRetriableError(ctx, err)
		} else {
			shouldRetry = true
		}

		lastErr = err
		if attempt == maxAttempts || !shouldRetry {
			// hand back the last response so callers can report its status
			return resp, err
		}
		if resp != nil {
			resp.Body.Close()
		}

		// backoff with jitter
		delay := baseDelay << (attempt - 1) // 100ms, 200ms, 400ms...
		if delay > 2*time.Second {
			delay = 2 * time.Second
		}
		jitter := time.Duration(rand.Int63n(int64(delay/5) + 1))
		delay = delay - delay/10 + jitter

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func isRetriableStatus(code int) bool {
	// Generic 5xx is not retried: providers answer those fast and the grunt
	// chain already has a fallback.
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

func isRetriableError(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
