package transform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lumiprint/backend/internal/remote"
)

func testExecutor() *remote.Executor {
	cfg := remote.DefaultConfig()
	cfg.Timeout = 2 * time.Second
	cfg.Backoff = time.Millisecond
	return remote.New(cfg, nil)
}

func TestTransformSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testExecutor(), nil)
	if err := c.Transform(context.Background(), "/in/a.jpg", "biometric", "2up", "/out/a.jpg"); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestTransformServiceRejectionIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"no face detected"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testExecutor(), nil)
	err := c.Transform(context.Background(), "/in/a.jpg", "biometric", "2up", "/out/a.jpg")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "no face detected") {
		t.Errorf("error = %v, want service message", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1 (rejections must not retry)", calls)
	}
}

func TestTransformRetriesConnectionErrors(t *testing.T) {
	// A closed server produces a connection error, which is retryable. The
	// executor exhausts its attempts and reports the service unavailable.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, testExecutor(), nil)
	err := c.Transform(context.Background(), "/in/a.jpg", "biometric", "2up", "/out/a.jpg")
	if !errors.Is(err, remote.ErrUnavailable) {
		t.Fatalf("error = %v, want remote.ErrUnavailable", err)
	}
}
