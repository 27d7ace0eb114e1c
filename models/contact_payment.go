package models

import (
	"time"
)

// Contact payment statuses
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// ContactPayment records a request to unlock a lister's contact details.
// ID doubles as the payment reference the user quotes back with PAID.
type ContactPayment struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	Phone     string     `gorm:"not null;index" json:"phone"`
	ListingID uint       `gorm:"not null;index" json:"listing_id"`
	Listing   Listing    `gorm:"foreignKey:ListingID" json:"listing,omitempty"`
	Amount    float64    `gorm:"not null" json:"amount"`
	Currency  string     `gorm:"not null;default:'USD'" json:"currency"`
	Status    string     `gorm:"not null;default:'pending';index" json:"status"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName specifies the table name for the ContactPayment model
func (ContactPayment) TableName() string {
	return "contact_payments"
}
