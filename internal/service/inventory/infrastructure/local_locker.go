// internal/service/inventory/infrastructure/local_locker.go
package infrastructure

import (
	"context"
	"sort"
	"sync"
)

// LocalLocker 是单实例部署下的进程内锁，按商品ID一把互斥锁。
// 所有调用方按字典序取锁，避免交叉等待。
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *LocalLocker) LockKeys(ctx context.Context, keys []string) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	acquired := make([]*sync.Mutex, 0, len(sorted))
	for _, key := range sorted {
		acquired = append(acquired, l.lockFor(key))
	}
	for _, m := range acquired {
		m.Lock()
	}
	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
	}, nil
}

func (l *LocalLocker) lockFor(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}
