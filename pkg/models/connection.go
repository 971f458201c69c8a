package models

import "time"

// ConnectionStatus is the persisted form of a connection's state
type ConnectionStatus string

const (
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusTokenExpired ConnectionStatus = "token_expired"
)

// SecretPresence records whether a secret exists without carrying its value
type SecretPresence string

const (
	SecretPresent SecretPresence = "present"
	SecretAbsent  SecretPresence = "absent"
)

// PresenceOf converts a boolean into a SecretPresence
func PresenceOf(ok bool) SecretPresence {
	if ok {
		return SecretPresent
	}
	return SecretAbsent
}

// Connection pairs a workspace with a provider. Secret material lives in the
// secret store; only its presence is recorded here.
type Connection struct {
	Workspace       string           `json:"workspace"`
	Provider        Provider         `json:"provider"`
	AccountLabel    string           `json:"account_label"`
	ConnectedAt     time.Time        `json:"connected_at"`
	LastSyncAt      *time.Time       `json:"last_sync_at,omitempty"`
	TokenExpiresAt  *time.Time       `json:"token_expires_at,omitempty"`
	LastRefreshedAt *time.Time       `json:"last_refreshed_at,omitempty"`
	Status          ConnectionStatus `json:"status"`
	AccessToken     SecretPresence   `json:"access_token"`
	RefreshToken    SecretPresence   `json:"refresh_token"`
	WebhookSecret   SecretPresence   `json:"webhook_secret"`
}

// State returns the connection's status as a ConnectionState.
// A connected status without an expiry is treated as expired.
func (c Connection) State() ConnectionState {
	switch c.Status {
	case ConnectionStatusDisconnected:
		return Disconnected{}
	case ConnectionStatusConnected:
		if c.TokenExpiresAt == nil {
			return TokenExpired{}
		}
		return Connected{ExpiresAt: *c.TokenExpiresAt}
	default:
		return TokenExpired{ExpiredAt: c.TokenExpiresAt}
	}
}

// ConnectionState is a closed set: Disconnected, Connected or TokenExpired
type ConnectionState interface {
	Status() ConnectionStatus
	sealed()
}

// Disconnected means the pairing was explicitly disconnected
type Disconnected struct{}

// Connected carries the expiry of a usable access token
type Connected struct {
	ExpiresAt time.Time
}

// TokenExpired means no usable access token is available
type TokenExpired struct {
	ExpiredAt *time.Time
}

func (Disconnected) Status() ConnectionStatus { return ConnectionStatusDisconnected }
func (Connected) Status() ConnectionStatus    { return ConnectionStatusConnected }
func (TokenExpired) Status() ConnectionStatus { return ConnectionStatusTokenExpired }

func (Disconnected) sealed() {}
func (Connected) sealed()    {}
func (TokenExpired) sealed() {}
