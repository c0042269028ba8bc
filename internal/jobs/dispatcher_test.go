package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSignVerify(t *testing.T) {
	body := []byte(`{"campaignId":"c1","sendRunId":"r1"}`)
	sig := Sign("secret", body)

	if !Verify("secret", body, sig) {
		t.Error("Verify() rejected valid signature")
	}
	if Verify("secret", []byte("tampered"), sig) {
		t.Error("Verify() accepted tampered body")
	}
	if Verify("other-key", body, sig) {
		t.Error("Verify() accepted signature under wrong key")
	}
	if Verify("secret", body, "not-hex") {
		t.Error("Verify() accepted malformed signature")
	}
}

func TestDispatcher_DeliversSignedCallback(t *testing.T) {
	var mu sync.Mutex
	var gotPayload TickPayload
	var gotSig string
	delivered := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		json.Unmarshal(body, &gotPayload)
		gotSig = r.Header.Get(SignatureHeader)
		mu.Unlock()
		if !Verify("secret", body, r.Header.Get(SignatureHeader)) {
			t.Error("server received invalid signature")
		}
		w.WriteHeader(http.StatusOK)
		delivered <- struct{}{}
	}))
	defer srv.Close()

	store := setupTestStore(t)
	d := NewDispatcher(store, DispatcherConfig{
		CallbackURL:  srv.URL,
		SigningKey:   "secret",
		PollInterval: 10 * time.Millisecond,
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	if err := store.ScheduleAfter("camp-1", "run-1", 0); err != nil {
		t.Fatalf("ScheduleAfter() error = %v", err)
	}

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotPayload.CampaignID != "camp-1" || gotPayload.SendRunID != "run-1" {
		t.Errorf("payload = %+v", gotPayload)
	}
	if gotSig == "" {
		t.Error("signature header missing")
	}
}

func TestDispatcher_RetriesOnFailure(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		done <- struct{}{}
	}))
	defer srv.Close()

	store := setupTestStore(t)
	d := NewDispatcher(store, DispatcherConfig{
		CallbackURL:   srv.URL,
		SigningKey:    "secret",
		PollInterval:  10 * time.Millisecond,
		RetryInterval: 20 * time.Millisecond,
		MaxRetries:    3,
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	if err := store.ScheduleAfter("camp-1", "run-1", 0); err != nil {
		t.Fatalf("ScheduleAfter() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback never succeeded after retry")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestDispatcher_DropsAfterMaxRetries(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := setupTestStore(t)
	d := NewDispatcher(store, DispatcherConfig{
		CallbackURL:   srv.URL,
		SigningKey:    "secret",
		PollInterval:  10 * time.Millisecond,
		RetryInterval: 10 * time.Millisecond,
		MaxRetries:    2,
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	if err := store.ScheduleAfter("camp-1", "run-1", 0); err != nil {
		t.Fatalf("ScheduleAfter() error = %v", err)
	}

	// Give it time to exhaust retries
	time.Sleep(500 * time.Millisecond)

	mu.Lock()
	got := attempts
	mu.Unlock()
	if got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}

	n, err := store.Len()
	if err != nil {
		t.Fatalf("Len() error = %v", err)
	}
	if n != 0 {
		t.Errorf("store still holds %d jobs after drop", n)
	}
}

func TestDispatcher_ReportsPendingGauge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := setupTestStore(t)
	d := NewDispatcher(store, DispatcherConfig{
		CallbackURL:  srv.URL,
		SigningKey:   "secret",
		PollInterval: 10 * time.Millisecond,
	}, discardLogger())

	var mu sync.Mutex
	var last int
	reported := make(chan struct{}, 16)
	d.SetPendingGauge(func(n int) {
		mu.Lock()
		last = n
		mu.Unlock()
		reported <- struct{}{}
	})

	if err := store.ScheduleAfter("camp-1", "run-1", 0); err != nil {
		t.Fatalf("ScheduleAfter() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	select {
	case <-reported:
	case <-time.After(2 * time.Second):
		t.Fatal("pending gauge never reported")
	}

	mu.Lock()
	defer mu.Unlock()
	if last != 0 {
		t.Errorf("pending = %d, want 0 after drain", last)
	}
}
