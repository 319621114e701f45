package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	authkit "github.com/atlas-pt/authkit-go"
)

func TestEventEmission(t *testing.T) {
	var mu sync.Mutex
	var events []Event

	logger := New(10, WithHandler(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}))
	defer logger.Close()

	event := Event{
		Action:   ActionCredentialRenewal,
		Result:   ResultSuccess,
		UserID:   "user123",
		TenantID: "tenant456",
	}
	logger.Log(event)

	// Give async processor time to handle event
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	if events[0].UserID != "user123" {
		t.Errorf("expected user123, got %s", events[0].UserID)
	}
	if events[0].Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestMultipleHandlers(t *testing.T) {
	var mu1, mu2 sync.Mutex
	var events1, events2 []Event

	handler1 := func(e Event) {
		mu1.Lock()
		defer mu1.Unlock()
		events1 = append(events1, e)
	}

	handler2 := func(e Event) {
		mu2.Lock()
		defer mu2.Unlock()
		events2 = append(events2, e)
	}

	logger := New(10, WithHandler(handler1), WithHandler(handler2))
	defer logger.Close()

	event := Event{Action: ActionRequestReplay, Result: ResultSuccess}
	logger.Log(event)

	time.Sleep(100 * time.Millisecond)

	mu1.Lock()
	if len(events1) != 1 {
		t.Fatalf("handler1: expected 1 event, got %d", len(events1))
	}
	mu1.Unlock()

	mu2.Lock()
	if len(events2) != 1 {
		t.Fatalf("handler2: expected 1 event, got %d", len(events2))
	}
	mu2.Unlock()
}

func TestLogCtxEnrichesFromContext(t *testing.T) {
	var mu sync.Mutex
	var events []Event

	logger := New(10, WithHandler(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}))
	defer logger.Close()

	ctx := context.Background()
	ctx = authkit.WithRequestID(ctx, "req-12345")
	ctx = authkit.WithUserID(ctx, "user-7")
	ctx = authkit.WithTenantID(ctx, "tenant-3")

	logger.LogCtx(ctx, Event{Action: ActionStateIssued, Result: ResultSuccess, Provider: "google"})

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.RequestID != "req-12345" || e.UserID != "user-7" || e.TenantID != "tenant-3" {
		t.Errorf("event not enriched from context: %+v", e)
	}
	if e.Provider != "google" {
		t.Errorf("Provider = %q, want google", e.Provider)
	}
}

func TestLogCtxKeepsExplicitFields(t *testing.T) {
	var mu sync.Mutex
	var events []Event

	logger := New(10, WithHandler(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}))
	defer logger.Close()

	ctx := authkit.WithRequestID(context.Background(), "from-context")

	logger.LogCtx(ctx, Event{Action: ActionStateConsumed, Result: ResultFailure, RequestID: "explicit"})

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].RequestID != "explicit" {
		t.Errorf("explicit RequestID was overwritten: %q", events[0].RequestID)
	}
}

func TestEventTimestamp(t *testing.T) {
	var mu sync.Mutex
	var events []Event

	logger := New(10, WithHandler(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}))
	defer logger.Close()

	now := time.Now()
	event := Event{Action: ActionWebhookRejected, Result: ResultFailure}
	logger.Log(event)

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if events[0].Timestamp.Before(now) || events[0].Timestamp.After(now.Add(1*time.Second)) {
		t.Error("timestamp not properly set")
	}
}

func TestCloseFlushesQueue(t *testing.T) {
	var mu sync.Mutex
	var count int

	logger := New(100, WithHandler(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		count++
	}))

	for i := 0; i < 50; i++ {
		logger.Log(Event{Action: ActionSessionTerminated, Result: ResultFailure})
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 50 {
		t.Errorf("expected 50 events flushed by Close, got %d", count)
	}
}

func TestErrorEvent(t *testing.T) {
	var mu sync.Mutex
	var events []Event

	logger := New(10, WithHandler(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}))
	defer logger.Close()

	event := Event{
		Action: ActionCredentialRenewal,
		Result: ResultFailure,
		Error:  "renewal endpoint returned 503",
		UserID: "unknown",
	}
	logger.Log(event)

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	if events[0].Error != "renewal endpoint returned 503" {
		t.Errorf("unexpected error field: %s", events[0].Error)
	}
	if events[0].Result != ResultFailure {
		t.Errorf("expected failure, got %s", events[0].Result)
	}
}
