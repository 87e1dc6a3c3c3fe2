package pipeline

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"os"
	"syscall"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/dvloznov/bankbatch/internal/config"
)

// FailureClass classifies a fault raised by a downstream operation. Only the
// Transient classes are retryable.
type FailureClass string

const (
	TransientConnectivity FailureClass = "transient_connectivity"
	TransientResource     FailureClass = "transient_resource"
	PermanentValidation   FailureClass = "permanent_validation"
	PermanentLogic        FailureClass = "permanent_logic"

	// Cancelled is the run being stopped by its caller, not a fault of the
	// data or the store. Kept out of the permanent buckets so reports do not
	// misattribute operator cancellation.
	Cancelled FailureClass = "cancelled"
)

// Retryable reports whether an operation that failed with this class may be
// re-attempted.
func (c FailureClass) Retryable() bool {
	return c == TransientConnectivity || c == TransientResource
}

// ClassifiedError wraps a downstream failure with its class and the number of
// attempts spent on it.
type ClassifiedError struct {
	Class    FailureClass
	Attempts int
	Err      error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %v", e.Class, e.Attempts, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// MySQL server error numbers that signal resource contention rather than bad
// data: lock wait timeout, deadlock, table locked, too many connections.
var mysqlResourceErrors = map[uint16]bool{
	1205: true,
	1213: true,
	1020: true,
	1040: true,
}

// Classify maps an error onto the failure taxonomy. Unknown errors classify
// as PermanentLogic: retrying a programming error only hides it.
func Classify(err error) FailureClass {
	if err == nil {
		return PermanentLogic
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Class
	}

	// Duplicate keys and other constraint violations: data that passed the
	// validator but fails a storage-level constraint.
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return PermanentValidation
	}
	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch {
		case mysqlErr.Number == 1062 || mysqlErr.Number == 1452 || mysqlErr.Number == 3819:
			return PermanentValidation
		case mysqlResourceErrors[mysqlErr.Number]:
			return TransientResource
		}
	}

	if errors.Is(err, context.Canceled) {
		return Cancelled
	}

	// Connectivity: reset connections, timeouts, unreachable hosts.
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, gomysql.ErrInvalidConn) {
		return TransientConnectivity
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return TransientConnectivity
	}

	return PermanentLogic
}

// RetryPolicy re-runs a fallible operation with exponential backoff and
// jitter. The zero value is unusable; build one with NewRetryPolicy.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	multiplier  float64
	jitterBound time.Duration

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(bound time.Duration) time.Duration
}

// NewRetryPolicy builds a policy from configuration. Defaults: 3 attempts,
// base delay doubling each attempt, random jitter up to the base delay.
func NewRetryPolicy(cfg config.Retry) RetryPolicy {
	return RetryPolicy{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		multiplier:  cfg.Multiplier,
		jitterBound: cfg.JitterBound,
		sleep:       sleepContext,
		jitter:      randomJitter,
	}
}

// Execute runs op, retrying on transient failures until the attempt budget is
// exhausted. It returns the number of retries performed (attempts beyond the
// first) and, on failure, a *ClassifiedError carrying the final class.
func (p RetryPolicy) Execute(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, &ClassifiedError{Class: Classify(err), Attempts: attempt - 1, Err: err}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return attempt - 1, nil
		}

		class := Classify(lastErr)
		if !class.Retryable() || attempt == p.maxAttempts {
			return attempt - 1, &ClassifiedError{Class: class, Attempts: attempt, Err: lastErr}
		}

		if err := p.sleep(ctx, p.delay(attempt)); err != nil {
			return attempt - 1, &ClassifiedError{Class: Classify(err), Attempts: attempt, Err: err}
		}
	}
	// Unreachable: the loop always returns.
	return p.maxAttempts, &ClassifiedError{Class: PermanentLogic, Attempts: p.maxAttempts, Err: lastErr}
}

// delay computes the backoff before retry number attempt+1:
// base * multiplier^(attempt-1) plus random jitter up to the jitter bound.
func (p RetryPolicy) delay(attempt int) time.Duration {
	backoff := time.Duration(float64(p.baseDelay) * math.Pow(p.multiplier, float64(attempt-1)))
	return backoff + p.jitter(p.jitterBound)
}

func randomJitter(bound time.Duration) time.Duration {
	if bound <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(bound)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
