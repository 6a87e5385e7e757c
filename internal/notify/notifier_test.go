package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/goleak"

	billingapp "jpusap-cobranzas/internal/billing/application"
	billing "jpusap-cobranzas/internal/billing/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingChannel struct {
	mu       sync.Mutex
	messages []Message
	failTo   map[string]bool
}

func (c *recordingChannel) Send(_ context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failTo[msg.To] {
		return errors.New("gateway down")
	}
	c.messages = append(c.messages, msg)
	return nil
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func reminder(memberID, phone string, debt string) billingapp.Reminder {
	return billingapp.Reminder{
		TenantID:     "t-1",
		MemberID:     memberID,
		MemberName:   "Rosa Quispe",
		Phone:        phone,
		Tier:         billing.TierDelinquent,
		OverdueCount: 2,
		DebtTotal:    decimal.RequireFromString(debt),
		Periods:      []billing.Period{"202501", "202502"},
	}
}

func TestWebhookNotifierPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	authCh := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		authCh <- r.Header.Get("Authorization")
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL, WithToken("secret"))
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	notifier, err := NewNotifier(channel, nil, WithAssociation("Asociación JPUSAP", "Pagar en tesorería."))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	result, err := notifier.Notify(context.Background(), []billingapp.Reminder{reminder("m-1", "+51999000111", "200")})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if result.Sent != 1 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	select {
	case payload := <-payloadCh:
		if payload.Type != "text" {
			t.Fatalf("expected type text, got %s", payload.Type)
		}
		if payload.Phone != "+51999000111" {
			t.Fatalf("unexpected phone %s", payload.Phone)
		}
		checks := []string{
			"Estimado(a) Rosa Quispe",
			"2 cuotas vencidas",
			"2025-01, 2025-02",
			"S/ 200.00",
			"Estado: Moroso",
			"Asociación JPUSAP",
			"Pagar en tesorería.",
		}
		for _, check := range checks {
			if !strings.Contains(payload.Message, check) {
				t.Fatalf("expected message to contain %q, got %q", check, payload.Message)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for webhook payload")
	}
	if got := <-authCh; got != "Bearer secret" {
		t.Fatalf("unexpected authorization header %q", got)
	}
}

func TestWebhookChannelNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	if err := channel.Send(context.Background(), Message{To: "+51", Text: "x"}); err == nil {
		t.Fatalf("expected error for 502 response")
	}
}

func TestNotifierCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)}
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil, WithClock(clock), WithCooldown(24*time.Hour))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	batch := []billingapp.Reminder{reminder("m-1", "+51999000111", "200")}

	if _, err := notifier.Notify(context.Background(), batch); err != nil {
		t.Fatalf("notify: %v", err)
	}
	clock.Advance(time.Hour)
	result, err := notifier.Notify(context.Background(), []billingapp.Reminder{reminder("m-1", "+51999000111", "300")})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if result.Skipped != 1 || channel.count() != 1 {
		t.Fatalf("expected cooldown skip, result=%+v sent=%d", result, channel.count())
	}

	clock.Advance(24 * time.Hour)
	result, err = notifier.Notify(context.Background(), batch)
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if result.Sent != 1 || channel.count() != 2 {
		t.Fatalf("expected send after cooldown, result=%+v sent=%d", result, channel.count())
	}
}

func TestNotifierDedupeWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)}
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil, WithClock(clock), WithDedupeWindow(48*time.Hour))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	same := []billingapp.Reminder{reminder("m-1", "+51999000111", "200")}
	if _, err := notifier.Notify(context.Background(), same); err != nil {
		t.Fatalf("notify: %v", err)
	}
	clock.Advance(time.Hour)
	result, _ := notifier.Notify(context.Background(), same)
	if result.Skipped != 1 {
		t.Fatalf("expected identical reminder to be skipped, got %+v", result)
	}

	changed := []billingapp.Reminder{reminder("m-1", "+51999000111", "300")}
	result, _ = notifier.Notify(context.Background(), changed)
	if result.Sent != 1 {
		t.Fatalf("expected changed reminder to be sent, got %+v", result)
	}
}

func TestNotifierCooldownHoldsWithinConcurrentBatch(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)}
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil, WithClock(clock), WithCooldown(24*time.Hour), WithConcurrency(8))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	batch := make([]billingapp.Reminder, 0, 8)
	for i := 0; i < 8; i++ {
		batch = append(batch, reminder("m-1", "+51999000111", "200"))
	}

	result, err := notifier.Notify(context.Background(), batch)
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if result.Sent != 1 || result.Skipped != 7 || channel.count() != 1 {
		t.Fatalf("expected one reminder per member, result=%+v sent=%d", result, channel.count())
	}
}

func TestNotifierFailedSendDoesNotStartCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)}
	channel := &recordingChannel{failTo: map[string]bool{"+51999000111": true}}
	notifier, err := NewNotifier(channel, nil, WithClock(clock), WithCooldown(24*time.Hour))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	batch := []billingapp.Reminder{reminder("m-1", "+51999000111", "200")}

	result, _ := notifier.Notify(context.Background(), batch)
	if result.Failed != 1 {
		t.Fatalf("expected failure, got %+v", result)
	}
	channel.mu.Lock()
	channel.failTo = nil
	channel.mu.Unlock()
	result, _ = notifier.Notify(context.Background(), batch)
	if result.Sent != 1 {
		t.Fatalf("expected retry to send, got %+v", result)
	}
}

func TestNotifierBatchesAndCountsFailures(t *testing.T) {
	channel := &recordingChannel{failTo: map[string]bool{"+51000": true}}
	notifier, err := NewNotifier(channel, nil, WithBatching(2, time.Millisecond), WithConcurrency(2))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	batch := []billingapp.Reminder{
		reminder("m-1", "+51001", "100"),
		reminder("m-2", "+51002", "100"),
		reminder("m-3", "+51000", "100"),
		reminder("m-4", "+51004", "100"),
		reminder("m-5", "+51005", "100"),
	}
	result, err := notifier.Notify(context.Background(), batch)
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if result.Sent != 4 || result.Failed != 1 || result.Skipped != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestNotifierStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil, WithBatching(1, time.Hour))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	result, err := notifier.Notify(ctx, []billingapp.Reminder{
		reminder("m-1", "+51001", "100"),
		reminder("m-2", "+51002", "100"),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.Sent != 1 {
		t.Fatalf("expected first batch sent before cancel, got %+v", result)
	}
}

func TestMultiChannelJoinsErrors(t *testing.T) {
	ok := &recordingChannel{}
	failing := &recordingChannel{failTo: map[string]bool{"+51": true}}
	multi := NewMultiChannel(ok, nil, failing)
	err := multi.Send(context.Background(), Message{To: "+51", Text: "hola"})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if ok.count() != 1 {
		t.Fatalf("expected healthy channel to receive message")
	}
}
