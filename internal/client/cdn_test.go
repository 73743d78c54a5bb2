package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"igrelay/internal/allowlist"
	"igrelay/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Relay: config.RelayConfig{
			FetchTimeoutSecs: 10,
			IdleConnections:  10,
			MaxRedirects:     5,
		},
	}
}

func newTestClient(cfg *config.Config, guard *allowlist.Allowlist) *CDNClient {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCDNClient(cfg, guard, logger, nil)
}

func TestFetch_StreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("fake image bytes"))
	}))
	defer srv.Close()

	c := newTestClient(testConfig(), allowlist.New([]string{"127.0.0.1"}))

	resp, err := c.Fetch(context.Background(), srv.URL+"/a.jpg", nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != "fake image bytes" {
		t.Errorf("body = %q, want %q", string(body), "fake image bytes")
	}
}

func TestFetch_ForwardsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Range"); got != "bytes=100-199" {
			t.Errorf("Range = %q, want %q", got, "bytes=100-199")
		}
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer srv.Close()

	c := newTestClient(testConfig(), allowlist.New([]string{"127.0.0.1"}))

	header := http.Header{}
	header.Set("Range", "bytes=100-199")

	resp, err := c.Fetch(context.Background(), srv.URL+"/clip.mp4", header)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusPartialContent)
	}
}

func TestFetch_NonOKStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(testConfig(), allowlist.New([]string{"127.0.0.1"}))

	resp, err := c.Fetch(context.Background(), srv.URL+"/expired.jpg", nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v; upstream 403 must pass through", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func TestFetch_Unreachable(t *testing.T) {
	c := newTestClient(testConfig(), allowlist.New([]string{"127.0.0.1"}))

	_, err := c.Fetch(context.Background(), "http://127.0.0.1:1/nonexistent.jpg", nil)
	if err == nil {
		t.Fatal("Fetch() expected error for unreachable host, got nil")
	}
}

func TestFetch_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Simulate a slow upstream; the request should be canceled before this completes.
		time.Sleep(5 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(testConfig(), allowlist.New([]string{"127.0.0.1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := c.Fetch(ctx, srv.URL+"/slow.mp4", nil)
	if err == nil {
		t.Fatal("Fetch() expected error for canceled context, got nil")
	}
}

func TestFetch_RedirectToDisallowedHostRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://evil.example.com/x.jpg", http.StatusFound)
	}))
	defer srv.Close()

	c := newTestClient(testConfig(), allowlist.New([]string{"127.0.0.1"}))

	_, err := c.Fetch(context.Background(), srv.URL+"/bounce.jpg", nil)
	if err == nil {
		t.Fatal("Fetch() expected error for redirect outside the allowlist, got nil")
	}
	var redirErr *ErrRedirectNotAllowed
	if !errors.As(err, &redirErr) {
		t.Errorf("error = %v, want ErrRedirectNotAllowed", err)
	}
}

func TestFetch_RedirectWithinAllowlistFollowed(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/bounce.jpg", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/final.jpg", http.StatusFound)
	})
	mux.HandleFunc("/final.jpg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("final"))
	})

	c := newTestClient(testConfig(), allowlist.New([]string{"127.0.0.1"}))

	resp, err := c.Fetch(context.Background(), srv.URL+"/bounce.jpg", nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "final" {
		t.Errorf("body = %q, want %q", string(body), "final")
	}
}

func TestFetch_TooManyRedirects(t *testing.T) {
	cfg := testConfig()
	cfg.Relay.MaxRedirects = 2

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/loop.jpg", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/loop.jpg", http.StatusFound)
	})

	c := newTestClient(cfg, allowlist.New([]string{"127.0.0.1"}))

	_, err := c.Fetch(context.Background(), srv.URL+"/loop.jpg", nil)
	if err == nil {
		t.Fatal("Fetch() expected error for redirect loop, got nil")
	}
}
