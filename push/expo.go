package push

import (
	"context"
	"fmt"
	"log"
	"time"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
)

// Expo's push API accepts at most 100 messages per request.
const expoChunkSize = 100

const expoDeviceNotRegistered = "DeviceNotRegistered"

// expoClient is the slice of the Expo SDK the provider uses.
type expoClient interface {
	PublishMultiple(messages []expo.PushMessage) ([]expo.PushResponse, error)
}

// ExpoProvider sends messages through the Expo push service in chunks,
// inspecting the per-message delivery tickets.
type ExpoProvider struct {
	client     expoClient
	chunkPause time.Duration
}

func NewExpoProvider() *ExpoProvider {
	return &ExpoProvider{
		client:     expo.NewPushClient(nil),
		chunkPause: time.Second,
	}
}

func (p *ExpoProvider) Name() string { return "expo" }

func (p *ExpoProvider) Send(ctx context.Context, msgs []Message) []Delivery {
	deliveries := make([]Delivery, 0, len(msgs))
	for start := 0; start < len(msgs); start += expoChunkSize {
		end := start + expoChunkSize
		if end > len(msgs) {
			end = len(msgs)
		}
		chunk := msgs[start:end]
		deliveries = append(deliveries, p.sendChunk(chunk)...)

		if end < len(msgs) && p.chunkPause > 0 {
			select {
			case <-ctx.Done():
				for _, m := range msgs[end:] {
					deliveries = append(deliveries, Delivery{Message: m, Err: ctx.Err()})
				}
				return deliveries
			case <-time.After(p.chunkPause):
			}
		}
	}
	return deliveries
}

func (p *ExpoProvider) sendChunk(chunk []Message) []Delivery {
	batch := make([]expo.PushMessage, 0, len(chunk))
	for _, m := range chunk {
		sound := ""
		if m.Sound {
			sound = "default"
		}
		batch = append(batch, expo.PushMessage{
			To:       []expo.ExponentPushToken{expo.ExponentPushToken(m.Token.Value)},
			Title:    m.Title,
			Body:     m.Body,
			Data:     m.Data,
			Sound:    sound,
			Priority: m.Priority,
		})
	}

	responses, err := p.client.PublishMultiple(batch)
	if err != nil {
		// Transport-level failure: the whole chunk is retryable.
		log.Printf("expo: chunk send failed: %v", err)
		out := make([]Delivery, 0, len(chunk))
		for _, m := range chunk {
			out = append(out, Delivery{Message: m, Err: err})
		}
		return out
	}

	out := make([]Delivery, 0, len(chunk))
	for i, m := range chunk {
		if i >= len(responses) {
			out = append(out, Delivery{Message: m, Err: fmt.Errorf("expo: missing ticket for message %s", m.ID)})
			continue
		}
		out = append(out, deliveryFromTicket(m, responses[i]))
	}
	return out
}

func deliveryFromTicket(m Message, ticket expo.PushResponse) Delivery {
	if ticket.Status == expo.SuccessStatus {
		return Delivery{Message: m}
	}
	d := Delivery{
		Message: m,
		Err:     fmt.Errorf("expo: %s", ticket.Message),
	}
	if detail, ok := ticket.Details["error"]; ok && detail == expoDeviceNotRegistered {
		d.Permanent = true
	}
	return d
}
