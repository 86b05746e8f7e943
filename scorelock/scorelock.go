// Package scorelock serializes the scoring of submissions of the same user,
// either inside the process or across judge instances through Redis.
package scorelock

import (
	"context"

	"github.com/learnhub/judgecore/pkg/keymutex"
)

// Locker locks a user for the duration of one scoring update
type Locker interface {
	Lock(ctx context.Context, userID string) (unlock func(), err error)
}

var _ Locker = &Local{}

// Local is an in-process Locker
type Local struct {
	km *keymutex.KeyMutex
}

// NewLocal creates an in-process locker
func NewLocal() *Local {
	return &Local{km: keymutex.New()}
}

// Lock waits for the user lock or for ctx
func (l *Local) Lock(ctx context.Context, userID string) (func(), error) {
	ch := make(chan func(), 1)
	go func() {
		ch <- l.km.Lock(userID)
	}()
	select {
	case unlock := <-ch:
		return unlock, nil
	case <-ctx.Done():
		// hand the lock back once it is acquired
		go func() {
			(<-ch)()
		}()
		return nil, ctx.Err()
	}
}
