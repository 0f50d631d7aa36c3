package core

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrModelCallLimit is returned once a run has used up its model calls.
var ErrModelCallLimit = errors.New("model call limit reached")

// ModelLimiter counts the model calls of one run, sub-agents included. A
// zero limit never trips.
type ModelLimiter struct {
	limit int64
	calls atomic.Int64
}

func NewModelLimiter(limit int) *ModelLimiter {
	return &ModelLimiter{limit: int64(limit)}
}

// Increment records a call. The call past the limit fails with
// ErrModelCallLimit.
func (l *ModelLimiter) Increment() error {
	if n := l.calls.Add(1); l.limit > 0 && n > l.limit {
		return fmt.Errorf("%w: %d calls allowed", ErrModelCallLimit, l.limit)
	}
	return nil
}

func (l *ModelLimiter) Count() int { return int(l.calls.Load()) }

// Remaining is -1 without a limit and never negative otherwise.
func (l *ModelLimiter) Remaining() int {
	if l.limit == 0 {
		return -1
	}
	return int(max(l.limit-l.calls.Load(), 0))
}
