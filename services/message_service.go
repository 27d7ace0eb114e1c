package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Roland735/cribmatch-website-sub000/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MessageFlags are the follow-up markers an inbound message can carry
type MessageFlags struct {
	NeedsFollowUp    bool
	TemplateRequired bool
}

// MessageLog records inbound messages and outbound delivery receipts
type MessageLog interface {
	RecordInbound(ctx context.Context, msg *InboundMessage) (*models.Message, error)
	Flag(ctx context.Context, phone, externalID string, flags MessageFlags) error
	UpdateDeliveryStatus(ctx context.Context, status DeliveryStatus) (int64, error)
}

// GormMessageLog writes to the messages table
type GormMessageLog struct {
	db *gorm.DB
}

// NewMessageLog creates a message log on db
func NewMessageLog(db *gorm.DB) *GormMessageLog {
	return &GormMessageLog{db: db}
}

// RecordInbound stores the user's message with its raw payload
func (s *GormMessageLog) RecordInbound(ctx context.Context, msg *InboundMessage) (*models.Message, error) {
	created := msg.Timestamp
	if created.IsZero() {
		created = time.Now()
	}
	entry := models.Message{
		Phone:          msg.From,
		Author:         models.AuthorUser,
		Kind:           msg.Kind,
		Body:           msg.Text,
		ConversationID: msg.From,
		Metadata:       datatypes.JSONMap{"variant": string(msg.Variant)},
		CreatedAt:      created,
	}
	if entry.Kind == "" {
		entry.Kind = models.KindUnknown
	}
	if msg.ID != "" {
		id := msg.ID
		entry.ExternalID = &id
	}
	if len(msg.Raw) > 0 {
		entry.RawPayload = datatypes.JSON(msg.Raw)
	}
	if msg.ContactName != "" {
		entry.Metadata["contactName"] = msg.ContactName
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("failed to record inbound message: %w", err)
	}
	return &entry, nil
}

// Flag sets follow-up markers on a user's message. Flags are only ever raised.
func (s *GormMessageLog) Flag(ctx context.Context, phone, externalID string, flags MessageFlags) error {
	var raise []flagColumn
	if flags.NeedsFollowUp {
		raise = append(raise, flagNeedsFollowUp)
	}
	if flags.TemplateRequired {
		raise = append(raise, flagTemplateRequired)
	}
	if len(raise) == 0 || externalID == "" {
		return nil
	}

	_, err := raiseFlags(ctx, s.db, func(q *gorm.DB) *gorm.DB {
		return q.Where("phone = ? AND external_id = ? AND author = ?", phone, externalID, models.AuthorUser)
	}, nil, raise...)
	if err != nil {
		return fmt.Errorf("failed to flag message: %w", err)
	}
	return nil
}

// UpdateDeliveryStatus stores a delivery receipt on the outbound message it refers to
func (s *GormMessageLog) UpdateDeliveryStatus(ctx context.Context, status DeliveryStatus) (int64, error) {
	if status.MessageID == "" {
		return 0, nil
	}
	var raise []flagColumn
	if status.WindowClosed {
		raise = append(raise, flagTemplateRequired)
	}

	n, err := raiseFlags(ctx, s.db, func(q *gorm.DB) *gorm.DB {
		return q.Where("external_id = ? AND author <> ?", status.MessageID, models.AuthorUser)
	}, map[string]interface{}{"delivery_status": status.Status}, raise...)
	if err != nil {
		return 0, fmt.Errorf("failed to update delivery status: %w", err)
	}
	return n, nil
}

// flagColumn pairs a boolean column with the metadata key that mirrors it
type flagColumn struct {
	column string
	key    string
}

var (
	flagHandled          = flagColumn{column: "handled", key: models.MetaHandledInbound}
	flagNeedsFollowUp    = flagColumn{column: "needs_follow_up", key: models.MetaNeedsFollowUp}
	flagTemplateRequired = flagColumn{column: "template_required", key: models.MetaTemplateRequired}
)

// raiseFlags applies updates to every message matched by scope, setting each flag
// column and its metadata mirror in one transaction. It returns the rows touched.
func raiseFlags(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB, updates map[string]interface{}, flags ...flagColumn) (int64, error) {
	var touched int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.Message
		if err := scope(tx.Model(&models.Message{})).Select("id", "metadata").Find(&rows).Error; err != nil {
			return err
		}
		for _, row := range rows {
			values := make(map[string]interface{}, len(updates)+len(flags)+1)
			for k, v := range updates {
				values[k] = v
			}
			if len(flags) > 0 {
				meta := cloneMeta(row.Metadata)
				for _, f := range flags {
					values[f.column] = true
					meta[f.key] = true
				}
				values["metadata"] = meta
			}
			if len(values) == 0 {
				continue
			}
			if err := tx.Model(&models.Message{}).Where("id = ?", row.ID).Updates(values).Error; err != nil {
				return err
			}
			touched++
		}
		return nil
	})
	return touched, err
}
