package dns

import (
	"context"
	"testing"
	"time"

	"advoid/pkg/blocklist"
	"advoid/pkg/logging"
)

func TestServer_StartShutdown(t *testing.T) {
	h := newTestHandler(t, blocklist.FromNames(), &fakeExchanger{})
	s := NewServer("127.0.0.1:0", h, logging.NewDefault())

	if s.IsRunning() {
		t.Error("Server should not be running before Start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start(ctx)
	}()

	time.Sleep(200 * time.Millisecond)
	if !s.IsRunning() {
		t.Error("Server should be running after Start")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() after cancel returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not shut down")
	}

	if s.IsRunning() {
		t.Error("Server should not be running after shutdown")
	}
}

func TestServer_DoubleStart(t *testing.T) {
	h := newTestHandler(t, blocklist.FromNames(), &fakeExchanger{})
	s := NewServer("127.0.0.1:0", h, logging.NewDefault())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = s.Start(ctx) }()
	time.Sleep(200 * time.Millisecond)

	if err := s.Start(ctx); err == nil {
		t.Error("Second Start() should fail while running")
	}
}

func TestServer_ShutdownIdempotent(t *testing.T) {
	h := newTestHandler(t, blocklist.FromNames(), &fakeExchanger{})
	s := NewServer("127.0.0.1:0", h, logging.NewDefault())

	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown of a stopped server returned error: %v", err)
	}
}
