package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicore/ehr-api/internal/core/ports"
)

type recordingNotifier struct {
	mu       sync.Mutex
	sent     []ports.Notification
	failures int // fail the first N Send calls
	calls    int
}

func (n *recordingNotifier) Send(_ context.Context, notification ports.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.calls <= n.failures {
		return errors.New("smtp unavailable")
	}
	n.sent = append(n.sent, notification)
	return nil
}

func (n *recordingNotifier) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *recordingNotifier) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestDispatcher_Delivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := &recordingNotifier{}
	d := NewDispatcher(2, 1, notifier, zerolog.Nop())
	d.Start(ctx)

	d.Enqueue(ports.Notification{Kind: ports.NotifyVerification, Email: "ana@clinic.test", Code: "123456"})

	if !waitFor(t, 2*time.Second, func() bool { return notifier.sentCount() == 1 }) {
		t.Fatalf("notification not delivered")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if notifier.sent[0].Code != "123456" {
		t.Fatalf("unexpected notification: %+v", notifier.sent[0])
	}
}

func TestDispatcher_SameRecipientKeepsOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := &recordingNotifier{}
	d := NewDispatcher(4, 1, notifier, zerolog.Nop())
	d.Start(ctx)

	kinds := []ports.NotificationKind{ports.NotifyVerification, ports.NotifyApproval, ports.NotifyRejection}
	for _, k := range kinds {
		d.Enqueue(ports.Notification{Kind: k, Email: "ana@clinic.test"})
	}

	if !waitFor(t, 2*time.Second, func() bool { return notifier.sentCount() == len(kinds) }) {
		t.Fatalf("not all notifications delivered")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	for i, k := range kinds {
		if notifier.sent[i].Kind != k {
			t.Fatalf("order broken at %d: got %s, want %s", i, notifier.sent[i].Kind, k)
		}
	}
}

func TestDispatcher_RetriesThenSucceeds(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out a retry backoff")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := &recordingNotifier{failures: 1}
	d := NewDispatcher(1, 2, notifier, zerolog.Nop())
	d.Start(ctx)

	d.Enqueue(ports.Notification{Kind: ports.NotifyApproval, Email: "ana@clinic.test", Token: "tok"})

	if !waitFor(t, 5*time.Second, func() bool { return notifier.sentCount() == 1 }) {
		t.Fatalf("notification not delivered after retry")
	}
	if notifier.callCount() != 2 {
		t.Fatalf("expected 2 attempts, got %d", notifier.callCount())
	}
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := &recordingNotifier{failures: 100}
	d := NewDispatcher(1, 1, notifier, zerolog.Nop())
	d.Start(ctx)

	d.Enqueue(ports.Notification{Kind: ports.NotifyRejection, Email: "ana@clinic.test"})

	if !waitFor(t, 2*time.Second, func() bool { return notifier.callCount() == 1 }) {
		t.Fatalf("notifier never called")
	}
	// A failed delivery is logged and dropped, never retried past the budget.
	time.Sleep(50 * time.Millisecond)
	if notifier.callCount() != 1 || notifier.sentCount() != 0 {
		t.Fatalf("unexpected attempts: calls=%d sent=%d", notifier.callCount(), notifier.sentCount())
	}
}
