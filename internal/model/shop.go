package model

import (
	"time"

	"gorm.io/gorm"
)

type PlanName string

const (
	PlanFree PlanName = "free"
	PlanPaid PlanName = "paid"
)

type Shop struct {
	gorm.Model
	ShopifyID int64  `json:"shopify_id" gorm:"uniqueIndex"`
	Domain    string `json:"domain" gorm:"uniqueIndex;not null"`

	// AccessToken is cleared on uninstall. Empty token means the shop has
	// no billing authority until it reinstalls.
	AccessToken string `json:"-"`

	// Plan is a denormalized cache of the current entitlement tier. It is
	// derived, not authoritative; the entitlement read path corrects it.
	Plan PlanName `json:"plan" gorm:"default:'free'"`

	UninstalledAt *time.Time `json:"uninstalled_at"`

	Subscriptions []ShopSubscription `json:"-"`
	Forms         []Form             `json:"-"`
}

func (s *Shop) Installed() bool {
	return s.AccessToken != "" && s.UninstalledAt == nil
}
