package limiter

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage keeps execution starts in process memory. Servers sharing one
// MemoryStorage share limits; separate processes do not.
type MemoryStorage struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	closed  bool

	retention       time.Duration
	cleanupInterval time.Duration
	stop            chan struct{}
	closeOnce       sync.Once
}

// MemoryStorageOption configures a MemoryStorage.
type MemoryStorageOption func(*MemoryStorage)

// WithCleanupInterval sets how often stale starts are pruned.
func WithCleanupInterval(interval time.Duration) MemoryStorageOption {
	return func(s *MemoryStorage) {
		if interval > 0 {
			s.cleanupInterval = interval
		}
	}
}

// WithRetention sets how long starts are kept before pruning. It must cover
// the largest window of any limiter using the storage.
func WithRetention(d time.Duration) MemoryStorageOption {
	return func(s *MemoryStorage) {
		if d > 0 {
			s.retention = d
		}
	}
}

// NewMemoryStorage creates a storage with a background pruning loop.
// Call Close to stop it.
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	s := &MemoryStorage{
		windows:         make(map[string][]time.Time),
		retention:       24 * time.Hour,
		cleanupInterval: time.Minute,
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.cleanupLoop()
	return s
}

// Record implements Storage.
func (s *MemoryStorage) Record(_ context.Context, name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStorageClosed
	}
	s.windows[name] = insertSorted(s.windows[name], at)
	return nil
}

// Count implements Storage.
func (s *MemoryStorage) Count(_ context.Context, name string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStorageClosed
	}
	return len(s.windows[name]) - firstAfter(s.windows[name], since), nil
}

// RecordIfBelow implements Storage.
func (s *MemoryStorage) RecordIfBelow(_ context.Context, name string, at, since time.Time, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStorageClosed
	}

	ts := s.windows[name]
	ts = ts[firstAfter(ts, since):]
	if len(ts) >= limit {
		s.windows[name] = ts
		return false, nil
	}
	s.windows[name] = insertSorted(ts, at)
	return true, nil
}

// Oldest implements Storage.
func (s *MemoryStorage) Oldest(_ context.Context, name string, since time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return time.Time{}, false, ErrStorageClosed
	}
	ts := s.windows[name]
	i := firstAfter(ts, since)
	if i == len(ts) {
		return time.Time{}, false, nil
	}
	return ts[i], true, nil
}

// Clear implements Storage.
func (s *MemoryStorage) Clear(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, name)
	return nil
}

// Close stops the pruning loop. Further calls fail with ErrStorageClosed.
func (s *MemoryStorage) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.windows = make(map[string][]time.Time)
		s.mu.Unlock()
		close(s.stop)
	})
	return nil
}

func (s *MemoryStorage) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.prune(time.Now().Add(-s.retention))
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStorage) prune(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, ts := range s.windows {
		ts = ts[firstAfter(ts, cutoff):]
		if len(ts) == 0 {
			delete(s.windows, name)
			continue
		}
		s.windows[name] = ts
	}
}

// firstAfter returns the index of the first timestamp strictly after t.
// ts is sorted ascending.
func firstAfter(ts []time.Time, t time.Time) int {
	lo, hi := 0, len(ts)
	for lo < hi {
		mid := (lo + hi) / 2
		if ts[mid].After(t) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func insertSorted(ts []time.Time, at time.Time) []time.Time {
	i := firstAfter(ts, at)
	ts = append(ts, time.Time{})
	copy(ts[i+1:], ts[i:])
	ts[i] = at
	return ts
}
