package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ListingAvailable = "available"
	ListingReserved  = "reserved"
	ListingSold      = "sold"
)

type Listing struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	Slug         string    `gorm:"size:280;not null;unique" json:"slug"`
	Description  string    `gorm:"type:text" json:"description"`
	PropertyType string    `gorm:"size:30;not null;index" json:"property_type"`
	City         string    `gorm:"size:100;not null;index" json:"city"`
	Location     string    `gorm:"size:255" json:"location"`
	Price        float64   `gorm:"type:numeric(15,2);not null" json:"price"`
	AreaSqFt     float64   `gorm:"type:numeric(12,2)" json:"area_sqft"`
	Status       string    `gorm:"size:20;not null;default:'available';index" json:"status"`
	IsFeatured   bool      `gorm:"default:false" json:"is_featured"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
