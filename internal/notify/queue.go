package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	defaultQueueSize    = 64
	defaultQueueTimeout = 30 * time.Second
	queueFlushTimeout   = 5 * time.Second
)

// ErrQueueFull is returned by Queue.Notify when the buffer is full and the
// notification was dropped.
var ErrQueueFull = errors.New("notify: queue full")

type queued struct {
	event   string
	title   string
	message string
}

// Queue hands notifications to a background goroutine so callers never wait
// on a sender. Run must be running for anything to be delivered.
type Queue struct {
	notifier *Notifier
	ch       chan queued
	timeout  time.Duration
	dropped  atomic.Int64
	logger   *slog.Logger
}

// NewQueue creates a Queue in front of n with room for size pending
// notifications. Each delivery is bounded by timeout. Non-positive values
// use the defaults.
func NewQueue(n *Notifier, size int, timeout time.Duration, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	if timeout <= 0 {
		timeout = defaultQueueTimeout
	}
	return &Queue{
		notifier: n,
		ch:       make(chan queued, size),
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "notify_queue")),
	}
}

// Notify enqueues the notification if event passes the filter. It never
// blocks.
func (q *Queue) Notify(ctx context.Context, event, title, message string) error {
	if !q.notifier.Enabled() || !q.notifier.Allows(event) {
		return nil
	}
	select {
	case q.ch <- queued{event: event, title: title, message: message}:
		return nil
	default:
		q.dropped.Add(1)
		q.logger.WarnContext(ctx, "notification dropped", slog.String("event", event))
		return ErrQueueFull
	}
}

// Dropped returns how many notifications were discarded because the queue
// was full.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }

// Run delivers queued notifications until ctx is cancelled, then flushes what
// is already buffered within a short deadline.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			q.flush()
			return ctx.Err()
		case n := <-q.ch:
			q.deliver(ctx, n)
		}
	}
}

func (q *Queue) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), queueFlushTimeout)
	defer cancel()
	for {
		select {
		case n := <-q.ch:
			if ctx.Err() != nil {
				q.logger.Warn("shutdown: notification not delivered", slog.String("event", n.event))
				continue
			}
			q.deliver(ctx, n)
		default:
			return
		}
	}
}

func (q *Queue) deliver(ctx context.Context, n queued) {
	sendCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	// dispatch logs per-sender failures.
	_ = q.notifier.dispatch(sendCtx, n.title, n.message)
}
