package progress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a single-process Store used when no Redis is configured and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[uuid.UUID]memoryEntry
	subs    map[chan uuid.UUID]struct{}
	history map[uuid.UUID][]Snapshot
}

type memoryEntry struct {
	snap    Snapshot
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: map[uuid.UUID]memoryEntry{},
		subs:    map[chan uuid.UUID]struct{}{},
		history: map[uuid.UUID][]Snapshot{},
	}
}

func (s *MemoryStore) Publish(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[snap.TaskID]; ok && s.now().Before(cur.expires) && cur.snap.Seq >= snap.Seq {
		return nil
	}
	s.entries[snap.TaskID] = memoryEntry{snap: *snap, expires: s.now().Add(s.ttl)}
	s.history[snap.TaskID] = append(s.history[snap.TaskID], *snap)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, taskID uuid.UUID) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[taskID]
	if !ok || !s.now().Before(cur.expires) {
		return nil, nil
	}
	out := cur.snap
	return &out, nil
}

// History returns every accepted snapshot for a task in publication order.
func (s *MemoryStore) History(taskID uuid.UUID) []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Snapshot(nil), s.history[taskID]...)
}

func (s *MemoryStore) PublishCancel(ctx context.Context, taskID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- taskID:
		default:
		}
	}
	return nil
}

func (s *MemoryStore) SubscribeCancel(ctx context.Context) (<-chan uuid.UUID, error) {
	ch := make(chan uuid.UUID, 16)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}
