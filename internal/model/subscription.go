package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Normalized subscription statuses. Webhook payloads deliver these uppercase,
// the REST charge endpoints deliver them lowercase.
const (
	StatusActive    = "ACTIVE"
	StatusAccepted  = "ACCEPTED"
	StatusPending   = "PENDING"
	StatusCancelled = "CANCELLED"
	StatusDeclined  = "DECLINED"
	StatusExpired   = "EXPIRED"
	StatusFrozen    = "FROZEN"
)

// ShopSubscription mirrors one recurring application charge over the shop's
// lifetime. One row per distinct charge id; rows are kept as history and only
// removed by a shop redact.
type ShopSubscription struct {
	gorm.Model
	ShopID uint `json:"shop_id" gorm:"index"`

	// ChargeID is the canonical charge id (trailing numeric part of the
	// GraphQL global id). RawChargeID keeps whatever encoding the first
	// sighting used, so rows written before normalization still match.
	ChargeID    string `json:"charge_id" gorm:"uniqueIndex;not null"`
	RawChargeID string `json:"raw_charge_id"`

	Status       string  `json:"status" gorm:"default:'PENDING'"`
	Price        float64 `json:"price"`
	CurrencyCode string  `json:"currency_code"`
	BillingCycle string  `json:"billing_cycle"`

	StartedAt *time.Time `json:"started_at"`
	// ExpiresAt nil means recurring, does not expire.
	ExpiresAt   *time.Time `json:"expires_at"`
	CancelledAt *time.Time `json:"cancelled_at"`

	Shop Shop `json:"-" gorm:"foreignKey:ShopID"`
}

// NormalizeChargeID reduces both id encodings the platform uses to one
// canonical string: "gid://shopify/AppSubscription/12345" and plain "12345"
// both become "12345".
func NormalizeChargeID(id string) string {
	id = strings.TrimSpace(id)
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		id = id[idx+1:]
	}
	// Global ids can carry a query suffix, e.g. "...?cursor=abc".
	if idx := strings.Index(id, "?"); idx >= 0 {
		id = id[:idx]
	}
	return id
}

// NormalizeStatus maps any casing the platform uses onto the canonical
// uppercase enum.
func NormalizeStatus(status string) string {
	return strings.ToUpper(strings.TrimSpace(status))
}

// IsCancelledFamily reports whether the status terminates billing.
func IsCancelledFamily(status string) bool {
	switch status {
	case StatusCancelled, StatusDeclined, StatusExpired:
		return true
	}
	return false
}

// StatusRank orders the charge lifecycle: pending, then the approved set
// (frozen included, since the platform may unfreeze), then the terminal
// statuses. A row never moves to a lower rank, so replayed or reordered
// events cannot demote it.
func StatusRank(status string) int {
	switch status {
	case StatusActive, StatusAccepted, StatusFrozen:
		return 1
	case StatusCancelled, StatusDeclined, StatusExpired:
		return 2
	}
	return 0
}

// Billable reports whether this row grants paid entitlement at the given
// instant: status active or accepted, and not past its expiry.
func (s *ShopSubscription) Billable(now time.Time) bool {
	if s.Status != StatusActive && s.Status != StatusAccepted {
		return false
	}
	if s.ExpiresAt != nil && s.ExpiresAt.Before(now) {
		return false
	}
	return true
}
