package model

import "gorm.io/gorm"

// PixelCredential stores one ad-platform tracking pixel for a shop.
type PixelCredential struct {
	gorm.Model
	ShopID   uint   `json:"shop_id" gorm:"index"`
	Platform string `json:"platform" gorm:"not null"`
	PixelID  string `json:"pixel_id" gorm:"not null"`
	// Access token for server-side conversion events, if the platform
	// supports them.
	AccessToken string `json:"-"`

	Shop Shop `json:"-" gorm:"foreignKey:ShopID"`
}
