package blobstore

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

func newLocal(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(t.TempDir(), logger.NewNop())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	return s
}

func TestLocalRoundTrip(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()
	pid := uuid.New()
	data := []byte("# Chapter 1\n\nAhmed traveled to Cairo.")

	p, err := s.Put(ctx, pid, "sources/notes.md", data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, p)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("bytes differ: %q", got)
	}
	if Checksum(got) != Checksum(data) {
		t.Fatalf("checksum mismatch")
	}
}

func TestLocalRefusesOverwrite(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()
	pid := uuid.New()
	if _, err := s.Put(ctx, pid, "a.txt", []byte("one")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, err := s.Put(ctx, pid, "a.txt", []byte("two"))
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestLocalRejectsEscapingKeys(t *testing.T) {
	s := newLocal(t)
	for _, key := range []string{"", "../x", "a/../../b", "/"} {
		if _, err := s.Put(context.Background(), uuid.New(), key, []byte("x")); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
	if _, err := s.Put(context.Background(), uuid.Nil, "a.txt", []byte("x")); err == nil {
		t.Fatalf("expected error for nil project")
	}
}

func TestLocalConcurrentPuts(t *testing.T) {
	s := newLocal(t)
	pid := uuid.New()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Put(context.Background(), pid, uuid.NewString()+".bin", bytes.Repeat([]byte{byte(i)}, 1024))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Put: %v", err)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		cfg Config
		ok  bool
	}{
		{Config{Mode: ModeLocal, Root: "/tmp/x"}, true},
		{Config{Mode: ModeLocal}, false},
		{Config{Mode: ModeGCS, Bucket: "b"}, true},
		{Config{Mode: ModeGCS}, false},
		{Config{Mode: ModeGCSEmulator, Bucket: "b", EmulatorHost: "http://fake-gcs:4443"}, true},
		{Config{Mode: ModeGCSEmulator, Bucket: "b", EmulatorHost: "fake-gcs"}, false},
		{Config{Mode: "s3"}, false},
	}
	for _, tc := range cases {
		if err := tc.cfg.Validate(); (err == nil) != tc.ok {
			t.Fatalf("Validate(%+v) err=%v want ok=%v", tc.cfg, err, tc.ok)
		}
	}
}
