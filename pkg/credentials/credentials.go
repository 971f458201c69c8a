// Package credentials holds the rules that decide whether a provider
// connection is usable: token lifetime, effective status and proactive refresh.
package credentials

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	// AccessTokenLifetime is how long an issued access token stays valid
	AccessTokenLifetime = 30 * 24 * time.Hour

	// ProactiveRefreshWindow is how close to expiry a token is refreshed eagerly
	ProactiveRefreshWindow = 12 * time.Hour
)

// EffectiveStatus derives a connection's state from its stored status, token
// expiry and whether an access token secret exists. It is the only place a
// status is decided; callers re-derive it whenever secrets or expiry change.
func EffectiveStatus(current models.ConnectionStatus, expiresAt *time.Time, hasAccessToken bool, now time.Time) models.ConnectionState {
	if current == models.ConnectionStatusDisconnected {
		return models.Disconnected{}
	}
	if !hasAccessToken {
		return models.TokenExpired{ExpiredAt: expiresAt}
	}
	if expiresAt == nil || !expiresAt.After(now) {
		return models.TokenExpired{ExpiredAt: expiresAt}
	}
	return models.Connected{ExpiresAt: *expiresAt}
}

// IsExpired reports whether the expiry has passed
func IsExpired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt == nil || !expiresAt.After(now)
}

// NeedsRefresh reports whether a token expiring at expiresAt falls inside the
// refresh window (or has no expiry at all).
func NeedsRefresh(expiresAt *time.Time, now time.Time, window time.Duration) bool {
	if expiresAt == nil {
		return true
	}
	return !now.Add(window).Before(*expiresAt)
}

// IssuedToken is an access token minted for a pairing
type IssuedToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer mints access tokens. The provider is simulated, so tokens are opaque
// random strings rather than the result of an OAuth exchange.
type Issuer interface {
	Issue(provider models.Provider, now time.Time) IssuedToken
}

// SyntheticIssuer mints "<provider>_at_<random>" tokens valid for AccessTokenLifetime
type SyntheticIssuer struct{}

func (SyntheticIssuer) Issue(provider models.Provider, now time.Time) IssuedToken {
	return IssuedToken{
		Value:     fmt.Sprintf("%s_at_%s", provider, strings.ReplaceAll(uuid.NewString(), "-", "")),
		IssuedAt:  now,
		ExpiresAt: now.Add(AccessTokenLifetime),
	}
}
