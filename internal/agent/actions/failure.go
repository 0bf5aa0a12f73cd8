package actions

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies why a job failed.
type FailureKind string

const (
	// KindValidation covers malformed payloads and input the engine rejects.
	// Retrying cannot help.
	KindValidation FailureKind = "validation"
	// KindTransient covers infrastructure trouble (connectivity, throttling)
	// where a redelivery may succeed.
	KindTransient FailureKind = "transient"
	// KindTimeout marks jobs that exceeded their wall-clock budget.
	KindTimeout FailureKind = "timeout"
	// KindCanceled marks jobs interrupted by shutdown.
	KindCanceled FailureKind = "canceled"
	// KindInternal covers programming errors, including recovered panics.
	KindInternal FailureKind = "internal"
)

// Failure is the normalized form of every error an action run can produce.
type Failure struct {
	Kind      FailureKind
	Message   string
	Retryable bool
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failure: %s", f.Kind, f.Message)
}

// Validation builds a non-retryable validation failure.
func Validation(format string, args ...any) *Failure {
	return &Failure{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Transient wraps err as a retryable infrastructure failure. Engine bridges
// use this to mark connectivity errors for redelivery.
func Transient(err error) *Failure {
	return &Failure{Kind: KindTransient, Message: err.Error(), Retryable: true}
}

// Internal builds a non-retryable internal failure.
func Internal(format string, args ...any) *Failure {
	return &Failure{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// Normalize maps an arbitrary action error onto the failure taxonomy.
// Failures pass through untouched; context errors become retryable timeout or
// cancellation failures; anything else is treated as a programming error and
// not retried, to avoid redelivery storms for bugs no retry can fix.
func Normalize(err error) *Failure {
	if err == nil {
		return nil
	}
	var failure *Failure
	if errors.As(err, &failure) {
		return failure
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: KindTimeout, Message: err.Error(), Retryable: true}
	}
	if errors.Is(err, context.Canceled) {
		return &Failure{Kind: KindCanceled, Message: err.Error(), Retryable: true}
	}
	return &Failure{Kind: KindInternal, Message: err.Error()}
}
