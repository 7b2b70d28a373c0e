package models

import "time"

// DefaultCredits is the starting balance of an auto-provisioned tenant.
const DefaultCredits = 10

// Tenant represents one storefront account, keyed by shop domain.
type Tenant struct {
	Shop        string    `db:"shop" json:"shop"`
	Credits     int       `db:"credits" json:"credits"`
	BrandVoice  *string   `db:"brand_voice" json:"brandVoice,omitempty"`
	IsOnboarded bool      `db:"is_onboarded" json:"isOnboarded"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// Voice returns the brand voice or an empty directive.
func (t *Tenant) Voice() string {
	if t.BrandVoice == nil {
		return ""
	}
	return *t.BrandVoice
}
