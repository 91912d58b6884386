package models

import "time"

// Venue codes for the two exchanges the top list covers.
const (
	MarketShanghai = "SH"
	MarketShenzhen = "SZ"
)

// Security represents a listed stock first seen on the top list.
// Code is the identity key and never changes once written.
type Security struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"size:10;uniqueIndex;not null" json:"code"`
	Name      string    `gorm:"size:50;not null" json:"name"`
	Market    string    `gorm:"size:10;index;not null" json:"market"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	UpdatedAt time.Time `json:"updated_at"`
}
