package lease

import (
	"context"
	"sync"
)

// LocalLocker grants leases within one process.
type LocalLocker struct {
	lock  sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(name string) chan struct{} {
	l.lock.Lock()
	defer l.lock.Unlock()
	ch, ok := l.slots[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[name] = ch
	}
	return ch
}

func (l *LocalLocker) Acquire(ctx context.Context, name string) (Release, error) {
	ch := l.slot(name)
	select {
	case ch <- struct{}{}:
		return once(func() error {
			<-ch
			return nil
		}), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
