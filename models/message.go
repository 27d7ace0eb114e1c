package models

import (
	"time"

	"gorm.io/datatypes"
)

// Message authors
const (
	AuthorUser   = "user"
	AuthorAgent  = "agent"
	AuthorSystem = "system"
)

// Message kinds
const (
	KindText        = "text"
	KindInteractive = "interactive"
	KindUnknown     = "unknown"
)

// Metadata keys. The last three mirror the flag columns of the same meaning.
const (
	MetaState            = "state"
	MetaDraft            = "draft"
	MetaListingIDs       = "listingIds"
	MetaListingID        = "listingId"
	MetaPaymentID        = "paymentId"
	MetaHandledInbound   = "handledInbound"
	MetaNeedsFollowUp    = "needsFollowUp"
	MetaTemplateRequired = "templateRequired"
)

// Message is one entry of the append-only WhatsApp conversation log.
// State mirrors metadata.state so the latest state can be queried without JSON operators.
type Message struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	Phone            string            `gorm:"not null;index" json:"phone"`
	Author           string            `gorm:"not null;index" json:"author"` // user, agent or system
	ExternalID       *string           `gorm:"index" json:"external_id,omitempty"`
	Kind             string            `gorm:"not null;default:'text'" json:"kind"`
	Body             string            `gorm:"type:text" json:"body"`
	RawPayload       datatypes.JSON    `json:"raw_payload,omitempty"`
	DeliveryStatus   string            `json:"delivery_status,omitempty"`
	State            string            `gorm:"index" json:"state,omitempty"`
	Handled          bool              `gorm:"not null;default:false" json:"handled"`
	NeedsFollowUp    bool              `gorm:"not null;default:false" json:"needs_follow_up"`
	TemplateRequired bool              `gorm:"not null;default:false" json:"template_required"`
	Metadata         datatypes.JSONMap `json:"metadata,omitempty"`
	ConversationID   string            `gorm:"index" json:"conversation_id,omitempty"`
	CreatedAt        time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// TableName specifies the table name for the Message model
func (Message) TableName() string {
	return "messages"
}
