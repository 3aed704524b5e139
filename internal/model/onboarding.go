package model

import "gorm.io/gorm"

// OnboardingProgress tracks which setup steps a shop has completed.
type OnboardingProgress struct {
	gorm.Model
	ShopID         uint `json:"shop_id" gorm:"uniqueIndex"`
	FormCreated    bool `json:"form_created" gorm:"default:false"`
	ShippingSet    bool `json:"shipping_set" gorm:"default:false"`
	PixelConnected bool `json:"pixel_connected" gorm:"default:false"`
	Dismissed      bool `json:"dismissed" gorm:"default:false"`

	Shop Shop `json:"-" gorm:"foreignKey:ShopID"`
}
