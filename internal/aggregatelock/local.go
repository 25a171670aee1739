package aggregatelock

import (
	"context"
	"sync"
	"time"
)

// LocalLocker is a keyed mutex for single-process deployments.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
	wait  time.Duration
}

type entry struct {
	slot chan struct{}
	refs int
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{locks: make(map[string]*entry), wait: wait}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{slot: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	deadline := time.NewTimer(l.wait)
	defer deadline.Stop()

	select {
	case e.slot <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.slot
				l.drop(key, e)
			})
		}, nil
	case <-ctx.Done():
		l.drop(key, e)
		return nil, ctx.Err()
	case <-deadline.C:
		l.drop(key, e)
		return nil, ErrBusy
	}
}

func (l *LocalLocker) drop(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// held reports how many callers hold or wait for key.
func (l *LocalLocker) held(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.locks[key]; ok {
		return e.refs
	}
	return 0
}
