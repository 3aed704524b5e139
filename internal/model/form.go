package model

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Form is one COD order form built by the merchant. The field layout and
// theming live in Schema as an opaque JSON document; the backend never
// interprets it.
type Form struct {
	gorm.Model
	ShopID   uint           `json:"shop_id" gorm:"index"`
	PublicID string         `json:"public_id" gorm:"uniqueIndex;not null"`
	Name     string         `json:"name" gorm:"not null"`
	IsActive bool           `json:"is_active" gorm:"default:true"`
	Schema   datatypes.JSON `json:"schema"`

	Shop Shop `json:"-" gorm:"foreignKey:ShopID"`
}

func (f *Form) BeforeCreate(tx *gorm.DB) error {
	if f.PublicID == "" {
		f.PublicID = uuid.New().String()
	}
	return nil
}
