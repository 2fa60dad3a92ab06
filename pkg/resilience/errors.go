package resilience

import "errors"

var (
	// ErrCircuitOpen is returned (or handed to the fallback) when the breaker
	// rejects a call without contacting the collaborator.
	ErrCircuitOpen = errors.New("circuit open")
)

// TransientError marks a failure as retryable. External clients wrap timeouts
// and 5xx responses with Transient; everything else fails on the first attempt.
type TransientError struct {
	inner error
}

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{inner: err}
}

func (e *TransientError) Error() string {
	return e.inner.Error()
}

func (e *TransientError) Unwrap() error {
	return e.inner
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
