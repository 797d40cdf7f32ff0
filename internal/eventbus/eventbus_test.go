package eventbus

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rook-mem/rook/pkg/memory"
	"github.com/rook-mem/rook/pkg/types"
)

func TestPublishCallsSubscribersInRegistrationOrder(t *testing.T) {
	b := New(nil)
	var order []string
	b.Subscribe(func(ctx context.Context, e Event) { order = append(order, "first") })
	b.Subscribe(func(ctx context.Context, e Event) { order = append(order, "second") })

	b.Publish(context.Background(), Event{Kind: Created, At: time.Now()})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected subscribers called in registration order, got %v", order)
	}
}

func TestPublishDeliversToWebhookWithSignature(t *testing.T) {
	received := make(chan *http.Request, 1)
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = b
		received <- r
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := New(nil)
	b.SubscribeWebhook(WebhookConfig{URL: srv.URL, Secret: "s3cr3t"})
	b.Publish(context.Background(), Event{Kind: Created, Scope: types.Scope{User: "u1", Agent: "a1"}, At: time.Now()})

	select {
	case req := <-received:
		if req.Header.Get("X-Rook-Signature") == "" {
			t.Fatalf("expected a signature header when a secret is configured")
		}
		if len(body) == 0 {
			t.Fatalf("expected a non-empty webhook payload")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for webhook delivery")
	}
}

func TestPublishRetriesFailedWebhookDeliveries(t *testing.T) {
	var attempts int32
	attemptsCh := make(chan int32, 5)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		attemptsCh <- attempts
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := New(nil)
	b.SubscribeWebhook(WebhookConfig{URL: srv.URL, MaxAttempts: 3})
	b.Publish(context.Background(), Event{Kind: Updated, At: time.Now()})

	seen := 0
	timeout := time.After(5 * time.Second)
	for seen < 3 {
		select {
		case <-attemptsCh:
			seen++
		case <-timeout:
			t.Fatalf("expected 3 delivery attempts, saw %d", seen)
		}
	}
}

func TestPublishDoesNotSignWithoutSecret(t *testing.T) {
	received := make(chan *http.Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := New(nil)
	b.SubscribeWebhook(WebhookConfig{URL: srv.URL})
	b.Publish(context.Background(), Event{Kind: Deleted, At: time.Now()})

	select {
	case req := <-received:
		if req.Header.Get("X-Rook-Signature") != "" {
			t.Fatalf("expected no signature header without a configured secret")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for webhook delivery")
	}
}

func TestEventCarriesMemorySnapshot(t *testing.T) {
	b := New(nil)
	var got Event
	b.Subscribe(func(ctx context.Context, e Event) { got = e })

	m := memory.Memory{ID: "m1", Text: "hello"}
	b.Publish(context.Background(), Event{Kind: Accessed, Memory: m, At: time.Now()})

	if got.Memory.ID != "m1" || got.Memory.Text != "hello" {
		t.Fatalf("expected event to carry the memory snapshot, got %+v", got.Memory)
	}
}
