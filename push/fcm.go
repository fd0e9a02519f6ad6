package push

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// fcmClient is the slice of the Firebase messaging client the provider uses.
type fcmClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMProvider sends messages through Firebase Cloud Messaging one at a
// time, with a small pause between sends to stay under provider rate
// limits. FCM has no batch contract we rely on.
type FCMProvider struct {
	client fcmClient
	pause  time.Duration
}

// NewFCMProvider initializes the Firebase app from a service-account
// credentials file and returns a provider backed by its messaging client.
func NewFCMProvider(ctx context.Context, credentialsFile string) (*FCMProvider, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	return &FCMProvider{client: client, pause: 100 * time.Millisecond}, nil
}

func (p *FCMProvider) Name() string { return "fcm" }

func (p *FCMProvider) Send(ctx context.Context, msgs []Message) []Delivery {
	deliveries := make([]Delivery, 0, len(msgs))
	for i, m := range msgs {
		deliveries = append(deliveries, p.sendOne(ctx, m))

		if i < len(msgs)-1 && p.pause > 0 {
			select {
			case <-ctx.Done():
				for _, rest := range msgs[i+1:] {
					deliveries = append(deliveries, Delivery{Message: rest, Err: ctx.Err()})
				}
				return deliveries
			case <-time.After(p.pause):
			}
		}
	}
	return deliveries
}

func (p *FCMProvider) sendOne(ctx context.Context, m Message) Delivery {
	sound := ""
	if m.Sound {
		sound = "default"
	}
	msg := &messaging.Message{
		Token: m.Token.Value,
		Notification: &messaging.Notification{
			Title: m.Title,
			Body:  m.Body,
		},
		Data: m.Data,
		Android: &messaging.AndroidConfig{
			Priority: m.Priority,
			Notification: &messaging.AndroidNotification{
				ChannelID: "transit-alerts",
				Sound:     sound,
			},
		},
	}
	if _, err := p.client.Send(ctx, msg); err != nil {
		return Delivery{
			Message:   m,
			Err:       fmt.Errorf("fcm: %w", err),
			Permanent: messaging.IsUnregistered(err),
		}
	}
	return Delivery{Message: m}
}
