package credentials

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Second)

	tests := []struct {
		name      string
		current   models.ConnectionStatus
		expiresAt *time.Time
		hasToken  bool
		want      models.ConnectionStatus
	}{
		{"disconnected stays disconnected", models.ConnectionStatusDisconnected, &future, true, models.ConnectionStatusDisconnected},
		{"missing access token", models.ConnectionStatusConnected, &future, false, models.ConnectionStatusTokenExpired},
		{"expired token", models.ConnectionStatusConnected, &past, true, models.ConnectionStatusTokenExpired},
		{"expiry exactly now", models.ConnectionStatusConnected, &now, true, models.ConnectionStatusTokenExpired},
		{"no expiry recorded", models.ConnectionStatusConnected, nil, true, models.ConnectionStatusTokenExpired},
		{"valid token", models.ConnectionStatusConnected, &future, true, models.ConnectionStatusConnected},
		{"expired status recovers with a valid token", models.ConnectionStatusTokenExpired, &future, true, models.ConnectionStatusConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := EffectiveStatus(tt.current, tt.expiresAt, tt.hasToken, now)
			assert.Equal(t, tt.want, state.Status())
		})
	}
}

func TestEffectiveStatus_ConnectedCarriesExpiry(t *testing.T) {
	now := time.Now()
	expires := now.Add(AccessTokenLifetime)

	state := EffectiveStatus(models.ConnectionStatusConnected, &expires, true, now)

	connected, ok := state.(models.Connected)
	assert.True(t, ok)
	assert.Equal(t, expires, connected.ExpiresAt)
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	within := now.Add(11 * time.Hour)
	outside := now.Add(13 * time.Hour)
	past := now.Add(-time.Minute)

	assert.True(t, NeedsRefresh(nil, now, ProactiveRefreshWindow))
	assert.True(t, NeedsRefresh(&within, now, ProactiveRefreshWindow))
	assert.True(t, NeedsRefresh(&past, now, ProactiveRefreshWindow))
	assert.False(t, NeedsRefresh(&outside, now, ProactiveRefreshWindow))
}

func TestSyntheticIssuer(t *testing.T) {
	now := time.Now()

	first := SyntheticIssuer{}.Issue(models.ProviderShopify, now)
	second := SyntheticIssuer{}.Issue(models.ProviderShopify, now)

	assert.True(t, strings.HasPrefix(first.Value, "shopify_at_"))
	assert.NotEqual(t, first.Value, second.Value)
	assert.Equal(t, now.Add(AccessTokenLifetime), first.ExpiresAt)
}
