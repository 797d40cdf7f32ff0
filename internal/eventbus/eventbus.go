// Package eventbus implements Rook's event bus (component L): lifecycle
// notifications fanned out to in-process subscribers synchronously, and to
// webhook subscribers asynchronously with backoff, a bounded retry budget,
// and optional HMAC signing.
package eventbus

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rook-mem/rook/internal/resilience"
	"github.com/rook-mem/rook/pkg/memory"
	"github.com/rook-mem/rook/pkg/types"
)

// Kind enumerates the lifecycle events a memory can emit.
type Kind string

const (
	Created Kind = "created"
	Updated Kind = "updated"
	Deleted Kind = "deleted"
	Accessed Kind = "accessed"
	Decayed Kind = "decayed"
)

// Event is one lifecycle notification.
type Event struct {
	Kind   Kind
	Scope  types.Scope
	Memory memory.Memory
	At     time.Time
}

// Subscriber receives events synchronously, in registration order, and must
// not block the publishing caller for long.
type Subscriber func(ctx context.Context, e Event)

// WebhookConfig describes one HTTP delivery target.
type WebhookConfig struct {
	URL     string
	Secret  string // optional HMAC-SHA256 signing secret
	Timeout time.Duration
	// MaxAttempts bounds delivery retries. Defaults to 3.
	MaxAttempts int
}

// Bus fans out lifecycle events to in-process subscribers and webhooks.
//
// All methods are safe for concurrent use.
type Bus struct {
	client *http.Client
	log    *slog.Logger

	mu          sync.RWMutex
	subscribers []Subscriber
	webhooks    []webhookTarget
}

type webhookTarget struct {
	cfg     WebhookConfig
	breaker *resilience.CircuitBreaker
}

// New constructs an empty Bus.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{client: &http.Client{}, log: log}
}

// Subscribe registers an in-process subscriber, called synchronously for
// every published event in registration order.
func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, s)
}

// SubscribeWebhook registers an HTTP delivery target, called asynchronously
// with exponential backoff up to cfg.MaxAttempts (default 3).
func (b *Bus) SubscribeWebhook(cfg WebhookConfig) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "webhook:" + cfg.URL,
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
		HalfOpenMax:  1,
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	b.webhooks = append(b.webhooks, webhookTarget{cfg: cfg, breaker: breaker})
}

// Publish calls every in-process subscriber synchronously, then dispatches
// to every webhook target asynchronously (fire-and-forget from the
// caller's perspective; delivery failures are logged, not returned).
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subscribers...)
	hooks := append([]webhookTarget(nil), b.webhooks...)
	b.mu.RUnlock()

	for _, s := range subs {
		s(ctx, e)
	}

	for _, h := range hooks {
		go b.deliver(h, e)
	}
}

func (b *Bus) deliver(target webhookTarget, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		b.log.Warn("webhook payload marshal failed", "url", target.cfg.URL, "error", err)
		return
	}

	backoff := 500 * time.Millisecond
	for attempt := 1; attempt <= target.cfg.MaxAttempts; attempt++ {
		err := target.breaker.Execute(func() error { return b.post(target.cfg, payload) })
		if err == nil {
			return
		}
		b.log.Warn("webhook delivery failed", "url", target.cfg.URL, "attempt", attempt, "error", err)
		if attempt == target.cfg.MaxAttempts {
			return
		}
		time.Sleep(backoff)
		backoff *= 2
	}
}

func (b *Bus) post(cfg WebhookConfig, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Secret != "" {
		req.Header.Set("X-Rook-Signature", sign(cfg.Secret, payload))
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &httpStatusError{code: resp.StatusCode}
	}
	return nil
}

type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string {
	return "webhook returned non-2xx status"
}

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
