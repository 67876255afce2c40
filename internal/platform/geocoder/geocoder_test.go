package geocoder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
)

func TestNominatimLocate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("format") != "json" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		switch r.URL.Query().Get("q") {
		case "القاهرة":
			_, _ = w.Write([]byte(`[{"lat":"30.0444","lon":"31.2357","display_name":"Cairo"}]`))
		case "Atlantis":
			_, _ = w.Write([]byte(`[]`))
		default:
			_, _ = w.Write([]byte(`[{"lat":"999","lon":"0"}]`))
		}
	}))
	defer srv.Close()

	g := New(nil, Config{BaseURL: srv.URL, UserAgent: "test"})
	got, err := g.Locate(context.Background(), "القاهرة")
	if err != nil || got == nil || got.Lat != 30.0444 || got.Lng != 31.2357 {
		t.Fatalf("Locate=%+v err=%v", got, err)
	}
	if got, err := g.Locate(context.Background(), "Atlantis"); err != nil || got != nil {
		t.Fatalf("unknown place: %+v %v", got, err)
	}
	if got, err := g.Locate(context.Background(), "Broken"); err != nil || got != nil {
		t.Fatalf("out-of-range coordinates must be treated as not found: %+v %v", got, err)
	}
}

func TestNominatimRetriesThenFailsTransient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "0")
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := New(nil, Config{BaseURL: srv.URL, MaxRetries: 1, Timeout: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := g.Locate(ctx, "Fez")
	if !apperrors.IsTransient(err) {
		t.Fatalf("err=%v want transient", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("calls=%d want 2", n)
	}
}

func TestNewWithoutBaseURL(t *testing.T) {
	if g := New(nil, Config{}); g != nil {
		t.Fatalf("expected nil geocoder without base url")
	}
}
