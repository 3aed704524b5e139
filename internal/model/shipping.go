package model

import "gorm.io/gorm"

// ShippingFee is a per-shop flat fee applied to orders for a named region.
type ShippingFee struct {
	gorm.Model
	ShopID       uint    `json:"shop_id" gorm:"index"`
	Region       string  `json:"region" gorm:"not null"`
	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currency_code"`

	Shop Shop `json:"-" gorm:"foreignKey:ShopID"`
}
