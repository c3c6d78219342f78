package location

import (
	"context"
	"sort"
	"sync"

	"github.com/Capricia-k/WoSport/internal/shared/geo"
)

// Feed is a Provider driven from outside the process: the native shell
// reports its authorization decision and forwards every OS fix.
type Feed struct {
	mu       sync.Mutex
	granted  *bool
	decided  chan struct{}
	watchers map[int]func(geo.Coordinate)
	nextID   int
}

func NewFeed() *Feed {
	return &Feed{
		decided:  make(chan struct{}),
		watchers: map[int]func(geo.Coordinate){},
	}
}

// SetPermission records the shell's authorization decision and wakes any
// pending RequestForegroundAccess.
func (f *Feed) SetPermission(granted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	first := f.granted == nil
	f.granted = &granted
	if first {
		close(f.decided)
	}
}

// Permission returns the last decision; ok is false while undetermined.
func (f *Feed) Permission() (granted, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.granted == nil {
		return false, false
	}
	return *f.granted, true
}

// RequestForegroundAccess waits for the shell to decide when no decision
// has been reported yet.
func (f *Feed) RequestForegroundAccess(ctx context.Context) (bool, error) {
	if granted, ok := f.Permission(); ok {
		return granted, nil
	}
	select {
	case <-f.decided:
		granted, _ := f.Permission()
		return granted, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (f *Feed) Watch(_ context.Context, _ WatchConfig, onFix func(geo.Coordinate)) (Subscription, error) {
	if granted, _ := f.Permission(); !granted {
		return nil, ErrPermissionDenied
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.watchers[id] = onFix
	return &feedSubscription{feed: f, id: id}, nil
}

// Push forwards c to every active watcher in registration order and
// returns how many received it.
func (f *Feed) Push(c geo.Coordinate) (int, error) {
	f.mu.Lock()
	if f.granted == nil || !*f.granted {
		f.mu.Unlock()
		return 0, ErrPermissionDenied
	}
	ids := make([]int, 0, len(f.watchers))
	for id := range f.watchers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(geo.Coordinate), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, f.watchers[id])
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
	return len(fns), nil
}

type feedSubscription struct {
	feed *Feed
	id   int
}

func (s *feedSubscription) Remove() {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	delete(s.feed.watchers, s.id)
}
