package models

import (
	"fmt"
	"strings"
)

// Provider identifies an external system inventory is exchanged with
type Provider string

const (
	ProviderQuickBooks Provider = "quickbooks"
	ProviderShopify    Provider = "shopify"
	ProviderSquare     Provider = "square"
)

// Providers lists every provider in the fixed order used when a caller
// needs "the first connected provider".
var Providers = []Provider{ProviderQuickBooks, ProviderShopify, ProviderSquare}

// AllWorkspaces is the workspace key for unscoped legacy data
const AllWorkspaces = "all"

// ParseProvider parses a provider name, case-insensitively
func ParseProvider(value string) (Provider, error) {
	candidate := Provider(strings.ToLower(strings.TrimSpace(value)))
	for _, p := range Providers {
		if p == candidate {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", value)
}

// DisplayName returns a human readable provider name for audit messages
func (p Provider) DisplayName() string {
	switch p {
	case ProviderQuickBooks:
		return "QuickBooks"
	case ProviderShopify:
		return "Shopify"
	case ProviderSquare:
		return "Square"
	default:
		return string(p)
	}
}

// SecretKind is the kind of secret stored for a (workspace, provider) pairing
type SecretKind string

const (
	SecretAccessToken   SecretKind = "access_token"
	SecretRefreshToken  SecretKind = "refresh_token"
	SecretWebhookSecret SecretKind = "webhook_secret"
)

// SecretKinds lists every secret kind, used when purging a pairing
var SecretKinds = []SecretKind{SecretAccessToken, SecretRefreshToken, SecretWebhookSecret}
