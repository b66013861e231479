package retry

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testErrRetryable struct {
}

func (e testErrRetryable) Error() string {
	return "retryable err"
}

func TestRetry(t *testing.T) {
	retryable, nonRetryable := testErrRetryable{}, fmt.Errorf("non-retryable")
	f := func(count *int, errs []error) error {
		cnt := *count
		// to prove the function logic is actually executed
		*count = cnt + 1
		return errs[cnt]
	}
	retryOn := func(e error) bool {
		_, ok := e.(testErrRetryable)
		return ok
	}
	tcs := []struct {
		name     string
		errs     []error
		strategy []RetryOption
		expected int
	}{
		{
			name:     "no retry",
			errs:     []error{nil},
			expected: 1,
		},
		{
			name: "retry with max attempt",
			errs: []error{
				retryable,
				retryable,
				nonRetryable,
			},
			expected: 3,
			strategy: []RetryOption{
				WithMaxAttempts(2),
				WithRetryOn(retryOn),
			},
		},
		{
			name: "retryOn",
			errs: []error{
				retryable,
				retryable,
				nonRetryable,
				retryable,
				retryable,
			},
			expected: 3,
			strategy: []RetryOption{
				WithMaxAttempts(10),
				WithRetryOn(retryOn),
			},
		},
	}

	for _, c := range tcs {
		errs, strategy, exp := c.errs, c.strategy, c.expected
		t.Run(c.name, func(*testing.T) {
			actual := 0
			Retry(
				func() error {
					// f can also return result besides values as long as we refer to
					// the result with pointer so that it won't get lost
					return f(&actual, errs)
				},
				strategy...,
			)
			if actual != exp {
				t.Errorf("expected %d for %v and %v but got %d", exp, errs, strategy, actual)
			}
		})
	}

}

func TestRetryTimeout(t *testing.T) {
	cnt := 0
	err := Retry(
		func() error {
			cnt++
			return testErrRetryable{}
		},
		WithTimeout(50*time.Millisecond),
		WithBaseDelay(20*time.Millisecond),
		WithExp(2.0),
		WithRetryOn(func(error) bool { return true }),
	)
	assert.Equal(t, ErrRetryTimedOut, err, "retry should have timed out")
	// 20ms then 40ms backoff; the timer fires before the 3rd retry
	assert.True(t, cnt >= 2 && cnt <= 3, "unexpected attempt count %d", cnt)
}

func TestIsDepOffline(t *testing.T) {
	tcs := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "Nil"},
		{name: "Plain", err: fmt.Errorf("boom")},
		{name: "DialFailure", err: &net.OpError{Op: "dial", Err: fmt.Errorf("connection refused")}, expected: true},
		{name: "WrappedDNSFailure", err: fmt.Errorf("ping: %w", &net.DNSError{Name: "redis"}), expected: true},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, IsDepOffline(c.err))
		})
	}
}
