package tracking

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Capricia-k/WoSport/internal/kv"
	"github.com/Capricia-k/WoSport/internal/shared/geo"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// OfflineBuffer keeps undelivered samples per session, oldest first. Queues
// outlive the session that filled them.
type OfflineBuffer struct {
	store kv.Store
	mu    sync.Mutex
	now   func() time.Time
}

func NewOfflineBuffer(store kv.Store) *OfflineBuffer {
	return &OfflineBuffer{store: store, now: time.Now}
}

// Append is durable once it returns nil.
func (b *OfflineBuffer) Append(ctx context.Context, sessionID string, c geo.Coordinate) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := b.read(ctx, sessionID)
	if err != nil {
		return err
	}
	entries = append(entries, OfflineEntry{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Latitude:   c.Latitude,
		Longitude:  c.Longitude,
		RecordedAt: b.now().UTC(),
	})
	return b.write(ctx, sessionID, entries)
}

func (b *OfflineBuffer) Entries(ctx context.Context, sessionID string) ([]OfflineEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.read(ctx, sessionID)
}

// Drain returns the queued coordinates in insertion order without removing them.
func (b *OfflineBuffer) Drain(ctx context.Context, sessionID string) ([]geo.Coordinate, error) {
	entries, err := b.Entries(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]geo.Coordinate, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Coordinate())
	}
	return out, nil
}

func (b *OfflineBuffer) Clear(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Wrap(b.store.RemoveMany(ctx, OfflineKey(sessionID)), "failed to clear offline queue")
}

// remove deletes the entries with the given ids. Entries appended or
// re-queued meanwhile are kept, and a queue cleared meanwhile stays empty.
func (b *OfflineBuffer) remove(ctx context.Context, sessionID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := b.read(ctx, sessionID)
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if _, ok := drop[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}
	if len(kept) == 0 {
		return errors.Wrap(b.store.RemoveMany(ctx, OfflineKey(sessionID)), "failed to clear offline queue")
	}
	return b.write(ctx, sessionID, kept)
}

func (b *OfflineBuffer) read(ctx context.Context, sessionID string) ([]OfflineEntry, error) {
	raw, ok, err := b.store.Get(ctx, OfflineKey(sessionID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read offline queue")
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var entries []OfflineEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, errors.Wrap(err, "failed to decode offline queue")
	}
	return entries, nil
}

func (b *OfflineBuffer) write(ctx context.Context, sessionID string, entries []OfflineEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return errors.Wrap(err, "failed to encode offline queue")
	}
	return errors.Wrap(b.store.Set(ctx, OfflineKey(sessionID), string(raw)), "failed to persist offline queue")
}
