package inventory

import (
	"context"
	"sort"
	"sync"
)

// Locker hands out per-key mutexes. Keys are always acquired in sorted order
// so callers locking overlapping sets cannot deadlock.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock is a one-slot semaphore so a waiter can give up on cancellation.
type keyLock struct {
	sem  chan struct{}
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

// Lock blocks until every key is held or ctx is done. On success it returns
// the matching unlock func; on failure nothing stays held.
func (l *Locker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = uniqueSorted(keys)

	held := make([]*keyLock, 0, len(keys))
	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].sem
			l.release(keys[i])
		}
	}

	for _, key := range keys {
		kl := l.acquire(key)
		select {
		case kl.sem <- struct{}{}:
			held = append(held, kl)
		case <-ctx.Done():
			l.release(key)
			unlock()
			return nil, ctx.Err()
		}
	}
	return unlock, nil
}

func (l *Locker) acquire(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *Locker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl := l.locks[key]
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

func uniqueSorted(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
