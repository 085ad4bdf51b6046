// Package optimistic applies a tentative local change ahead of a backing
// operation and restores the prior state when that operation fails.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout wraps context.DeadlineExceeded when the operation outlives its
// budget.
var ErrTimeout = errors.New("operation timed out")

// Update is a tentative change. Apply must capture whatever Rollback needs.
type Update struct {
	Apply    func()
	Rollback func()
}

// Combine applies updates in order and rolls them back in reverse.
func Combine(updates ...Update) Update {
	return Update{
		Apply: func() {
			for _, u := range updates {
				if u.Apply != nil {
					u.Apply()
				}
			}
		},
		Rollback: func() {
			for i := len(updates) - 1; i >= 0; i-- {
				if updates[i].Rollback != nil {
					updates[i].Rollback()
				}
			}
		},
	}
}

// WithUpdate applies u, runs op and rolls u back if op fails, panics or runs
// past timeout. A zero timeout means no extra deadline.
func WithUpdate[T any](ctx context.Context, u Update, timeout time.Duration, op func(ctx context.Context) (T, error)) (result T, err error) {
	if u.Apply != nil {
		u.Apply()
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if u.Rollback != nil {
			u.Rollback()
		}
		if p := recover(); p != nil {
			panic(p)
		}
	}()

	opCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err = op(opCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		var zero T
		return zero, err
	}

	committed = true
	return result, nil
}
