package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	errLockHeld    = errors.New("lock is held by another transaction")
	errLockTimeout = errors.New("lock wait timeout exceeded")
)

// lockTable hands out exclusive tokens per key. A token is a slot in a
// buffered channel of size one.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{slots: map[string]chan struct{}{}}
}

func (l *lockTable) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *lockTable) acquire(ctx context.Context, key string, nowait bool, timeout time.Duration) error {
	ch := l.slot(key)
	if nowait {
		select {
		case ch <- struct{}{}:
			return nil
		default:
			return errLockHeld
		}
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-deadline:
		return errLockTimeout
	}
}

func (l *lockTable) release(key string) {
	ch := l.slot(key)
	select {
	case <-ch:
	default:
	}
}
