package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent is the raw copy of an inbound webhook delivery
type WebhookEvent struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	Provider       string            `gorm:"not null;default:'whatsapp'" json:"provider"`
	Kind           string            `gorm:"index" json:"kind"`
	Headers        datatypes.JSONMap `json:"headers,omitempty"`
	Payload        datatypes.JSON    `json:"payload"`
	SignatureValid bool              `json:"signature_valid"`
	ReceivedAt     time.Time         `gorm:"not null;index" json:"received_at"`
}

// TableName specifies the table name for the WebhookEvent model
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
