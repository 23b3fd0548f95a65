package models

import "time"

// Product is a purchasable catalog entry. The code is the stable key buyers
// select by; the access payload is released verbatim on approval.
type Product struct {
	Code string `gorm:"column:code;primaryKey"`
	Name string `gorm:"column:name;not null" validate:"required"`
	// Price is a whole amount in the configured currency, no minor units.
	Price  int     `gorm:"column:price;not null" validate:"required,gt=0"`
	Access string  `gorm:"column:access;not null" validate:"required"`
	Image  *string `gorm:"column:image"`
	// CreatedAt drives insertion-order catalog listings.
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
