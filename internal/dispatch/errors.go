package dispatch

import (
	"fmt"
	"time"
)

// ThrottleError сигнализирует ретраеру, что исполнитель сам назвал паузу
// (аналог Retry-After), и экспоненциальный бэкофф не нужен.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }
