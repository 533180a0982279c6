package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	LeadNew       = "new"
	LeadContacted = "contacted"
	LeadQualified = "qualified"
	LeadConverted = "converted"
	LeadLost      = "lost"
)

type Lead struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Name      string     `gorm:"size:255;not null" json:"name"`
	Email     string     `gorm:"size:255;not null;index" json:"email"`
	Phone     string     `gorm:"size:20" json:"phone"`
	Message   string     `gorm:"type:text" json:"message"`
	Source    string     `gorm:"size:50;default:'website'" json:"source"`
	Status    string     `gorm:"size:20;not null;default:'new';index" json:"status"`
	ListingID *uuid.UUID `gorm:"type:uuid;index" json:"listing_id,omitempty"`

	Listing *Listing `gorm:"foreignkey:ListingID" json:"listing,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l *Lead) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
