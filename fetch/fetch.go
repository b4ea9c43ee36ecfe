package fetch

import (
	"context"
	"fmt"
	"time"

	"fundingflow/logger"
)

// Class describes how a failed request should be handled on retry.
type Class int

const (
	// ClassFatal errors are surfaced immediately without retry.
	ClassFatal Class = iota
	// ClassTransient errors are retried after a fixed short delay.
	ClassTransient
	// ClassRateLimited errors are retried with a linearly increasing
	// backoff (attempt index times the policy base delay).
	ClassRateLimited
)

// StatusError is a non-2xx HTTP response from a data source.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// APIError is a non-zero application-level return code from the exchange.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// Policy is a declarative retry policy shared by all data-source readers.
type Policy struct {
	MaxAttempts    int
	RateLimitBase  time.Duration
	TransientDelay time.Duration
	Classify       func(error) Class
}

// Do runs attempt until it succeeds, the error classifies as fatal, the
// policy is exhausted, or ctx is cancelled. Each retry is logged so the
// operator can see why the run is stalling.
func Do[T any](ctx context.Context, log *logger.Entry, p Policy, attempt func(context.Context) (T, error)) (T, error) {
	var (
		result T
		err    error
	)

	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for i := 1; i <= attempts; i++ {
		result, err = attempt(ctx)
		if err == nil {
			return result, nil
		}

		class := ClassTransient
		if p.Classify != nil {
			class = p.Classify(err)
		}
		if class == ClassFatal {
			return result, err
		}
		if i == attempts {
			return result, fmt.Errorf("giving up after %d attempts: %w", attempts, err)
		}

		var wait time.Duration
		switch class {
		case ClassRateLimited:
			wait = time.Duration(i) * p.RateLimitBase
		default:
			wait = p.TransientDelay
		}

		log.WithError(err).WithFields(logger.Fields{
			"attempt": i,
			"wait":    wait.String(),
		}).Warn("request failed, retrying")

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(wait):
		}
	}

	return result, err
}
