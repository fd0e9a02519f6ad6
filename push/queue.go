package push

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/transitwatch/transit-notify/internal/metrics"
)

const (
	defaultRetryDelay = 5 * time.Second
	defaultMaxRetries = 3
)

// InvalidTokenHandler reacts to a provider reporting permanent token
// invalidity.
type InvalidTokenHandler interface {
	RemoveInvalid(ctx context.Context, token string) bool
}

// Queue buffers outbound messages and dispatches them through the Expo and
// FCM providers. At most one processing pass is in flight at any time;
// producers may keep enqueueing during a pass. Recoverable failures are
// re-enqueued and retried on a constant backoff until the retry budget is
// spent, then dropped. Permanent failures trigger token removal instead.
type Queue struct {
	mu      sync.Mutex
	pending []Message

	processing atomic.Bool
	closed     atomic.Bool

	expo   Provider
	fcm    Provider
	tokens InvalidTokenHandler

	policy     backoff.BackOff
	maxRetries int

	timerMu    sync.Mutex
	retryTimer *time.Timer

	metrics *metrics.Collector
}

// NewQueue wires a queue to its providers. fcm may be nil when FCM is not
// configured; messages classified as FCM are then dropped with a log line.
func NewQueue(expo, fcm Provider, tokens InvalidTokenHandler, m *metrics.Collector) *Queue {
	return &Queue{
		expo:       expo,
		fcm:        fcm,
		tokens:     tokens,
		policy:     backoff.WithMaxRetries(backoff.NewConstantBackOff(defaultRetryDelay), defaultMaxRetries),
		maxRetries: defaultMaxRetries,
		metrics:    m,
	}
}

// Enqueue adds one message to the buffer.
func (q *Queue) Enqueue(msg Message) {
	q.mu.Lock()
	q.pending = append(q.pending, msg)
	q.mu.Unlock()
	q.metrics.AddQueued(1)
}

// EnqueueMany adds a batch of messages to the buffer.
func (q *Queue) EnqueueMany(msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, msgs...)
	q.mu.Unlock()
	q.metrics.AddQueued(len(msgs))
}

// Pending reports the current buffer size.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Process runs one dispatch pass over the buffered messages. A call while
// another pass is in flight is a no-op.
func (q *Queue) Process(ctx context.Context) {
	q.process(ctx, 0)
}

func (q *Queue) process(ctx context.Context, attempt int) {
	if q.closed.Load() {
		return
	}
	if !q.processing.CompareAndSwap(false, true) {
		log.Printf("queue: processing already in flight, skipping")
		return
	}
	defer q.processing.Store(false)

	if attempt == 0 {
		q.policy.Reset()
	}

	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	log.Printf("queue: processing %d message(s) (attempt %d)", len(batch), attempt)

	var expoBatch, fcmBatch []Message
	for _, m := range batch {
		if m.Token.Kind == KindExpo {
			expoBatch = append(expoBatch, m)
		} else {
			fcmBatch = append(fcmBatch, m)
		}
	}

	var retry []Message
	retry = append(retry, q.dispatch(ctx, q.expo, expoBatch)...)
	retry = append(retry, q.dispatch(ctx, q.fcm, fcmBatch)...)
	if len(retry) == 0 {
		return
	}

	delay := q.policy.NextBackOff()
	if delay == backoff.Stop || attempt >= q.maxRetries {
		log.Printf("queue: dropping %d message(s) after %d attempt(s)", len(retry), attempt+1)
		q.metrics.AddDropped(len(retry))
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, retry...)
	q.mu.Unlock()
	q.metrics.AddRetried(len(retry))
	q.scheduleRetry(ctx, delay, attempt+1)
}

func (q *Queue) dispatch(ctx context.Context, p Provider, msgs []Message) []Message {
	if len(msgs) == 0 {
		return nil
	}
	if p == nil {
		log.Printf("queue: no provider configured for %d message(s), dropping", len(msgs))
		q.metrics.AddDropped(len(msgs))
		return nil
	}

	var retry []Message
	for _, d := range p.Send(ctx, msgs) {
		switch {
		case d.Err == nil:
			q.metrics.IncSend(p.Name(), "ok")
		case d.Permanent:
			log.Printf("queue: %s reported dead token for message %s: %v", p.Name(), d.Message.ID, d.Err)
			q.metrics.IncSend(p.Name(), "permanent")
			if q.tokens != nil {
				q.tokens.RemoveInvalid(ctx, d.Message.Token.Value)
			}
		default:
			log.Printf("queue: %s send failed for message %s: %v", p.Name(), d.Message.ID, d.Err)
			q.metrics.IncSend(p.Name(), "error")
			retry = append(retry, d.Message)
		}
	}
	return retry
}

func (q *Queue) scheduleRetry(ctx context.Context, delay time.Duration, attempt int) {
	q.timerMu.Lock()
	defer q.timerMu.Unlock()
	if q.closed.Load() {
		return
	}
	if q.retryTimer != nil {
		q.retryTimer.Stop()
	}
	q.retryTimer = time.AfterFunc(delay, func() {
		q.process(ctx, attempt)
	})
}

// SendDirect bypasses the queue and sends one message synchronously through
// the provider matching its token. Used for test notifications.
func (q *Queue) SendDirect(ctx context.Context, msg Message) bool {
	p := q.expo
	if msg.Token.Kind == KindFCM {
		p = q.fcm
	}
	if p == nil {
		log.Printf("queue: no provider configured for token kind %s", msg.Token.Kind)
		return false
	}
	deliveries := p.Send(ctx, []Message{msg})
	if len(deliveries) == 0 {
		return false
	}
	if deliveries[0].Err != nil {
		log.Printf("queue: direct send failed: %v", deliveries[0].Err)
		return false
	}
	return true
}

// Shutdown stops accepting processing passes and cancels a pending retry.
func (q *Queue) Shutdown() {
	q.closed.Store(true)
	q.timerMu.Lock()
	defer q.timerMu.Unlock()
	if q.retryTimer != nil {
		q.retryTimer.Stop()
		q.retryTimer = nil
	}
}
