package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	name string
	err  error

	mu     sync.Mutex
	titles []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func TestNotifierFilter(t *testing.T) {
	tests := []struct {
		name   string
		events []string
		event  string
		want   int
	}{
		{"no filter allows all", nil, "anything", 1},
		{"listed event passes", []string{"execution_failed", " unreconciled_exposure "}, "unreconciled_exposure", 1},
		{"unlisted event dropped", []string{"execution_failed"}, "opportunity_detected", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &recordingSender{name: "rec"}
			n := NewNotifier([]Sender{s}, tt.events, discardLogger())
			if err := n.Notify(context.Background(), tt.event, "t", "m"); err != nil {
				t.Fatalf("Notify: %v", err)
			}
			if len(s.titles) != tt.want {
				t.Errorf("sent %d, want %d", len(s.titles), tt.want)
			}
		})
	}
}

func TestNotifierContinuesPastFailingSender(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordingSender{name: "bad", err: boom}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, []string{"x"}, discardLogger())

	err := n.NotifyAll(context.Background(), "title", "msg")
	if !errors.Is(err, boom) {
		t.Fatalf("NotifyAll err = %v, want wrapped boom", err)
	}
	if len(good.titles) != 1 {
		t.Error("good sender skipped after failure")
	}
	if !n.Enabled() {
		t.Error("Enabled = false with senders")
	}
	if NewNotifier(nil, nil, discardLogger()).Enabled() {
		t.Error("Enabled = true without senders")
	}
}

func TestDiscordSender(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	if err := d.Send(context.Background(), "Arbitrage executed", "details"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Content != "**Arbitrage executed**\ndetails" {
		t.Errorf("content = %q", got.Content)
	}

	long := strings.Repeat("x", 3000)
	if err := d.Send(context.Background(), "t", long); err != nil {
		t.Fatalf("Send long: %v", err)
	}
	if n := len([]rune(got.Content)); n != discordContentLimit {
		t.Errorf("long content length = %d, want %d", n, discordContentLimit)
	}
}

func TestDiscordSenderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v, want status 404", err)
	}
}

// fakeTelegram serves getMe and sendMessage. sendMessage fails the first
// failures times.
func fakeTelegram(t *testing.T, failures int) (*httptest.Server, *[]string) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls int
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"arb","username":"arb_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			if err := r.ParseForm(); err != nil {
				t.Errorf("parse form: %v", err)
			}
			mu.Lock()
			calls++
			n := calls
			if n > failures {
				texts = append(texts, r.PostForm.Get("chat_id")+"|"+r.PostForm.Get("text"))
			}
			mu.Unlock()
			if n <= failures {
				_, _ = io.WriteString(w, `{"ok":false,"error_code":500,"description":"try later"}`)
				return
			}
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &texts
}

func TestTelegramSender(t *testing.T) {
	srv, texts := fakeTelegram(t, 1)

	s, err := NewTelegramSender("token", "42",
		WithTelegramEndpoint(srv.URL+"/bot%s/%s"),
		WithTelegramRetry(3, time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewTelegramSender: %v", err)
	}
	if err := s.Send(context.Background(), "Profit 2.5%", "Buy A."); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(*texts) != 1 {
		t.Fatalf("delivered %d messages, want 1", len(*texts))
	}
	want := "42|*Profit 2\\.5%*\nBuy A\\."
	if (*texts)[0] != want {
		t.Errorf("sent %q, want %q", (*texts)[0], want)
	}
}

func TestTelegramSenderGivesUp(t *testing.T) {
	srv, _ := fakeTelegram(t, 10)

	s, err := NewTelegramSender("token", "@alerts",
		WithTelegramEndpoint(srv.URL+"/bot%s/%s"),
		WithTelegramRetry(2, time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewTelegramSender: %v", err)
	}
	if err := s.Send(context.Background(), "t", "m"); err == nil {
		t.Error("Send succeeded against a failing API")
	}
}

func TestTelegramSenderBadChatID(t *testing.T) {
	if _, err := NewTelegramSender("token", "not-a-number"); err == nil {
		t.Error("accepted non-numeric chat id")
	}
}

func TestTelegramSenderHungAPI(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"arb","username":"arb_bot"}}`)
			return
		}
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	s, err := NewTelegramSender("token", "42",
		WithTelegramEndpoint(srv.URL+"/bot%s/%s"),
		WithTelegramTimeout(2*time.Second),
	)
	if err != nil {
		t.Fatalf("NewTelegramSender: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = s.Send(ctx, "t", "m")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Send err = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Send returned after %s, want it to honour the context", elapsed)
	}

	// The client timeout ends the request even without a deadline.
	start = time.Now()
	if err := s.Send(context.Background(), "t", "m"); err == nil {
		t.Error("Send succeeded against a hung API")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Send took %s, want the 2s client timeout", elapsed)
	}
}

func TestTelegramSenderSingleAttemptByDefault(t *testing.T) {
	var mu sync.Mutex
	sends := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"arb","username":"arb_bot"}}`)
			return
		}
		mu.Lock()
		sends++
		mu.Unlock()
		_, _ = io.WriteString(w, `{"ok":false,"error_code":500,"description":"try later"}`)
	}))
	t.Cleanup(srv.Close)

	s, err := NewTelegramSender("token", "42", WithTelegramEndpoint(srv.URL+"/bot%s/%s"))
	if err != nil {
		t.Fatalf("NewTelegramSender: %v", err)
	}
	start := time.Now()
	if err := s.Send(context.Background(), "t", "m"); err == nil {
		t.Fatal("Send succeeded against a failing API")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Send took %s, want no back-off", elapsed)
	}
	mu.Lock()
	defer mu.Unlock()
	if sends != 1 {
		t.Errorf("sendMessage called %d times, want 1", sends)
	}
}

// blockingSender blocks every Send until its context ends or release is
// closed.
type blockingSender struct {
	release chan struct{}
	sent    atomic.Int64
}

func (s *blockingSender) Send(ctx context.Context, _, _ string) error {
	select {
	case <-s.release:
		s.sent.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *blockingSender) Name() string { return "blocking" }

func TestQueueNotifyNeverBlocks(t *testing.T) {
	slow := &blockingSender{release: make(chan struct{})}
	q := NewQueue(NewNotifier([]Sender{slow}, []string{"wanted"}, discardLogger()), 2, time.Minute, discardLogger())

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := q.Notify(context.Background(), "wanted", "t", "m"); err != nil {
			t.Fatalf("Notify #%d: %v", i, err)
		}
	}
	if err := q.Notify(context.Background(), "wanted", "t", "m"); !errors.Is(err, ErrQueueFull) {
		t.Errorf("third Notify err = %v, want ErrQueueFull", err)
	}
	if err := q.Notify(context.Background(), "ignored", "t", "m"); err != nil {
		t.Errorf("filtered Notify err = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Notify blocked for %s", elapsed)
	}
	if q.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", q.Dropped())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()
	close(slow.release)

	deadline := time.Now().Add(2 * time.Second)
	for slow.sent.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if got := slow.sent.Load(); got != 2 {
		t.Errorf("delivered %d, want 2", got)
	}
}

func TestQueueDeliveryIsBounded(t *testing.T) {
	slow := &blockingSender{release: make(chan struct{})}
	fast := &recordingSender{name: "rec"}
	q := NewQueue(NewNotifier([]Sender{slow, fast}, nil, discardLogger()), 4, 50*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Run(ctx) }()

	for i := 0; i < 2; i++ {
		_ = q.Notify(context.Background(), "e", "t", "m")
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fast.mu.Lock()
		n := len(fast.titles)
		fast.mu.Unlock()
		if n == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("a hung sender stalled the queue")
}
