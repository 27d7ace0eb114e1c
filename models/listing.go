package models

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Listing statuses
const (
	ListingStatusDraft     = "draft"
	ListingStatusPublished = "published"
)

// shortIDAlphabet leaves out 0/O and 1/I/L so ids survive being read aloud or retyped.
const shortIDAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const shortIDLength = 4

// Listing is a rental property offered on the marketplace
type Listing struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	ShortID           string         `gorm:"uniqueIndex;size:8" json:"short_id"`
	Title             string         `gorm:"not null" json:"title" validate:"max=120"`
	ListerPhoneNumber string         `gorm:"index" json:"lister_phone_number" validate:"omitempty,numeric,max=20"`
	ListerName        string         `json:"lister_name"`
	Suburb            string         `gorm:"index" json:"suburb" validate:"max=80"`
	City              string         `json:"city" validate:"max=80"`
	Category          string         `json:"category"`
	PropertyType      string         `json:"property_type" validate:"max=60"`
	PricePerMonth     float64        `gorm:"not null;default:0" json:"price_per_month" validate:"gte=0"`
	Deposit           float64        `gorm:"not null;default:0" json:"deposit" validate:"gte=0"`
	Bedrooms          int            `gorm:"not null;default:0" json:"bedrooms" validate:"gte=0,lte=50"`
	Description       string         `gorm:"type:text" json:"description"`
	Features          datatypes.JSON `json:"features,omitempty"`
	Images            datatypes.JSON `json:"images,omitempty"`
	ContactName       string         `json:"contact_name"`
	ContactPhone      string         `json:"contact_phone"`
	ContactWhatsApp   string         `json:"contact_whatsapp"`
	ContactEmail      string         `json:"contact_email" validate:"omitempty,email"`
	Status            string         `gorm:"not null;default:'draft';index" json:"status" validate:"oneof=draft published"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Listing model
func (Listing) TableName() string {
	return "listings"
}

// BeforeCreate assigns a unique short id when none was provided
func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ShortID != "" {
		return nil
	}
	for attempt := 0; attempt < 10; attempt++ {
		candidate, err := NewShortID()
		if err != nil {
			return err
		}
		var count int64
		if err := tx.Session(&gorm.Session{NewDB: true}).Unscoped().
			Model(&Listing{}).Where("short_id = ?", candidate).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			l.ShortID = candidate
			return nil
		}
	}
	return errors.New("could not allocate a unique listing short id")
}

// NewShortID returns a random short listing id
func NewShortID() (string, error) {
	buf := make([]byte, shortIDLength)
	max := big.NewInt(int64(len(shortIDAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate short id: %w", err)
		}
		buf[i] = shortIDAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// ImageKeys decodes the stored image keys or URLs
func (l Listing) ImageKeys() []string {
	return decodeStrings(l.Images)
}

// FeatureList decodes the stored feature tags
func (l Listing) FeatureList() []string {
	return decodeStrings(l.Features)
}

// ContactNumber returns the best number to reach the lister on
func (l Listing) ContactNumber() string {
	switch {
	case l.ContactWhatsApp != "":
		return l.ContactWhatsApp
	case l.ContactPhone != "":
		return l.ContactPhone
	default:
		return l.ListerPhoneNumber
	}
}

// Reference returns the id users type in chat commands
func (l Listing) Reference() string {
	if l.ShortID != "" {
		return l.ShortID
	}
	return fmt.Sprintf("%d", l.ID)
}

// EncodeStrings stores a string slice in a JSON column
func EncodeStrings(values []string) datatypes.JSON {
	if len(values) == 0 {
		return nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func decodeStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
