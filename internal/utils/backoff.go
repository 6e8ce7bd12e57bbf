package utils

import (
	"time"
)

// Backoff retries fn with exponential delays. Used for the upstream
// feed pulls, which are flaky enough to deserve a couple of attempts.
type Backoff struct {
	base       time.Duration
	maxRetries int
}

func NewBackoff(base time.Duration, maxRetries int) Backoff {
	return Backoff{base: base, maxRetries: maxRetries}
}

func (b Backoff) Do(fn func(i int) error) error {
	var err error
	for i := 0; i <= b.maxRetries; i++ {
		err = fn(i)
		if err == nil {
			return nil
		}
		if i < b.maxRetries {
			time.Sleep(time.Duration(1<<i) * b.base)
		}
	}
	return err
}
