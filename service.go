package transitnotify

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/transitwatch/transit-notify/gtfsrt"
	"github.com/transitwatch/transit-notify/internal/metrics"
	"github.com/transitwatch/transit-notify/push"
)

// NotificationRecorder persists the per-subscription accounting after a
// notification is queued.
type NotificationRecorder interface {
	MarkNotified(ctx context.Context, id primitive.ObjectID, at time.Time, vehicleID string) error
}

// Service ties one tick together: match vehicles against subscriptions,
// record who was notified, then hand the messages to the queue.
type Service struct {
	matcher  *Matcher
	recorder NotificationRecorder
	queue    *push.Queue
	metrics  *metrics.Collector
}

func NewService(matcher *Matcher, recorder NotificationRecorder, queue *push.Queue, m *metrics.Collector) *Service {
	return &Service{matcher: matcher, recorder: recorder, queue: queue, metrics: m}
}

// ProcessVehicleLocations runs the matching pass for one feed snapshot.
//
// Subscription accounting writes are sequential, never parallel: two
// matches in one tick must not race on the same document. A failed write
// is logged and does not hold back the messages; delivering beats
// bookkeeping.
func (s *Service) ProcessVehicleLocations(ctx context.Context, vehicles []gtfsrt.VehiclePosition) error {
	start := time.Now()
	msgs, updates, err := s.matcher.Match(ctx, vehicles, start)
	if err != nil {
		return err
	}
	s.metrics.ObserveTick(time.Since(start))
	if len(updates) == 0 {
		return nil
	}

	for _, upd := range updates {
		if err := s.recorder.MarkNotified(ctx, upd.SubscriptionID, upd.NotifiedAt, upd.VehicleID); err != nil {
			log.Printf("service: mark notified %s: %v", upd.SubscriptionID.Hex(), err)
		}
	}

	log.Printf("service: queueing %d notifications for %d subscriptions", len(msgs), len(updates))
	s.queue.EnqueueMany(msgs)
	go s.queue.Process(context.WithoutCancel(ctx))
	return nil
}

// SendTestNotification bypasses matching and the queue's retry machinery
// and pushes one message immediately. Used by the test endpoint.
func (s *Service) SendTestNotification(ctx context.Context, token, title, body string) bool {
	msg := push.NewMessage(push.Classify(token), title, body, map[string]string{"type": "test"})
	return s.queue.SendDirect(ctx, msg)
}
