package models

import (
	"strings"
	"time"
)

// Tier is the billing tier of a tenant.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// ParseTier maps a raw tier string to a known tier. Unknown values fall
// back to free rather than erroring, matching the permissive config
// behavior clients already rely on.
func ParseTier(raw string) Tier {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(TierPremium):
		return TierPremium
	default:
		return TierFree
	}
}

// TenantConfig holds per-tenant settings. Mutated only by the admin
// config operation; read on every ping and listing.
type TenantConfig struct {
	Tier            Tier      `json:"tier"`
	AlertWebhookURL string    `json:"alert_webhook_url,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DefaultTenantConfig is the config assumed for tenants that never had
// one written: free tier, no webhook.
func DefaultTenantConfig() *TenantConfig {
	return &TenantConfig{Tier: TierFree}
}

// AlertsEnabled reports whether transition alerts should fire for this
// tenant: premium tier with a configured webhook.
func (c *TenantConfig) AlertsEnabled() bool {
	return c != nil && c.Tier == TierPremium && strings.TrimSpace(c.AlertWebhookURL) != ""
}
