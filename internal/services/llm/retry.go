package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

func (c *Client) completeWithRetry(ctx context.Context, payload chatCompletionRequest, op string) (string, error) {
	attempts := c.retryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	made := 0

	for attempt := 1; attempt <= attempts; attempt++ {
		made = attempt
		completion, body, err := c.sendOnce(ctx, payload)
		if err == nil {
			content, finishReason, refusal := extractContent(completion)
			if content != "" {
				return content, nil
			}
			if len(completion.Choices) == 0 {
				err = fmt.Errorf("%s: empty choices", op)
			} else {
				err = &emptyContentError{
					Op:           op,
					FinishReason: finishReason,
					Refusal:      refusal,
					Snippet:      summarizePayloadSnippet(string(body)),
				}
			}
		}
		lastErr = err

		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			if attempt == 1 {
				return "", err
			}
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("%s: failed after %d attempts: %w", op, made, lastErr)
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var emptyErr *emptyContentError
	if errors.As(err, &emptyErr) {
		return c.backoffDelay(attempt), true
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

// backoffDelay doubles from the base delay: attempt 1 -> base, 2 -> base*2, ...
func (c *Client) backoffDelay(attempt int) time.Duration {
	if c.retryBaseDelay <= 0 {
		return 0
	}
	delay := c.retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if c.retryMaxDelay > 0 && delay >= c.retryMaxDelay {
			break
		}
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay, true
		}
	}
	return 0, false
}
