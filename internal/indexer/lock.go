package indexer

import "sync/atomic"

// IndexLock is a non-blocking mutex guarding bulk runs. A second Reindex
// or MigrateDimension fails fast instead of queueing behind the first.
type IndexLock struct {
	held atomic.Bool
}

// TryAcquire takes the lock if it is free
func (l *IndexLock) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release frees the lock. Only the holder may call it.
func (l *IndexLock) Release() {
	l.held.Store(false)
}

// Held reports whether a bulk run is executing
func (l *IndexLock) Held() bool {
	return l.held.Load()
}
