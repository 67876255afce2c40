package progress

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryStoreDropsStaleSeq(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	id := uuid.New()

	_ = s.Publish(ctx, &Snapshot{TaskID: id, Seq: 2, Progress: 50})
	_ = s.Publish(ctx, &Snapshot{TaskID: id, Seq: 1, Progress: 10})
	got, err := s.Get(ctx, id)
	if err != nil || got == nil {
		t.Fatalf("Get: %v %v", got, err)
	}
	if got.Progress != 50 {
		t.Fatalf("older seq overwrote newer snapshot: %d", got.Progress)
	}
}

func TestMemoryStoreTTL(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }
	id := uuid.New()
	_ = s.Publish(context.Background(), &Snapshot{TaskID: id, Seq: 1})

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	if got, _ := s.Get(context.Background(), id); got != nil {
		t.Fatalf("expected expired snapshot, got %+v", got)
	}
}

func TestMemoryStoreCancelFanout(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := s.SubscribeCancel(ctx)
	if err != nil {
		t.Fatalf("SubscribeCancel: %v", err)
	}
	id := uuid.New()
	_ = s.PublishCancel(ctx, id)
	select {
	case got := <-ch:
		if got != id {
			t.Fatalf("got %s want %s", got, id)
		}
	case <-time.After(time.Second):
		t.Fatalf("cancel notice not delivered")
	}
}
