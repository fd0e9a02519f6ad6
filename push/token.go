package push

import (
	"context"
	"log"
	"strings"

	"github.com/transitwatch/transit-notify/internal/metrics"
)

// Kind identifies the provider a device token belongs to.
type Kind int

const (
	KindExpo Kind = iota
	KindFCM
)

func (k Kind) String() string {
	if k == KindExpo {
		return "expo"
	}
	return "fcm"
}

// Token is a classified push token. Classification happens once, at the
// point a raw token enters the pipeline, so providers never re-derive the
// kind by string inspection.
type Token struct {
	Kind  Kind
	Value string
}

// Classify tags a raw device token by provider. Expo tokens are recognized
// by their bracketed prefix; everything else is treated as an FCM
// registration token.
func Classify(raw string) Token {
	if strings.HasPrefix(raw, "ExponentPushToken[") || strings.HasPrefix(raw, "ExpoPushToken[") {
		return Token{Kind: KindExpo, Value: raw}
	}
	return Token{Kind: KindFCM, Value: raw}
}

// TokenStore removes a push token from every user record holding it.
type TokenStore interface {
	RemovePushToken(ctx context.Context, token string) (int64, error)
}

// TokenManager handles permanently invalid tokens reported by providers.
type TokenManager struct {
	store   TokenStore
	metrics *metrics.Collector
}

func NewTokenManager(store TokenStore, m *metrics.Collector) *TokenManager {
	return &TokenManager{store: store, metrics: m}
}

// RemoveInvalid deletes token from all users. Returns true when at least
// one user record was modified.
func (tm *TokenManager) RemoveInvalid(ctx context.Context, token string) bool {
	n, err := tm.store.RemovePushToken(ctx, token)
	if err != nil {
		log.Printf("remove invalid token: %v", err)
		return false
	}
	if n > 0 {
		log.Printf("removed invalid token from %d user(s)", n)
		tm.metrics.IncTokensRemoved()
	}
	return n > 0
}
