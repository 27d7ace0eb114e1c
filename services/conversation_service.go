package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Roland735/cribmatch-website-sub000/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrStaleState is returned when another turn wrote the conversation first
var ErrStaleState = errors.New("conversation state was modified concurrently")

// StateSnapshot is the current chatbot state for one phone
type StateSnapshot struct {
	State     models.ConversationState
	Metadata  datatypes.JSONMap
	Version   int64
	UpdatedAt time.Time
}

// StateWrite is a new state and the system log entry that records it
type StateWrite struct {
	State    models.ConversationState
	Metadata datatypes.JSONMap
	// Body is the reply text logged with the transition
	Body string
	// ExternalID is the provider id of the first outbound message
	ExternalID string
}

// ConversationStore persists chatbot state with optimistic versioning
type ConversationStore interface {
	GetState(ctx context.Context, phone string) (*StateSnapshot, error)
	SetState(ctx context.Context, phone string, expectedVersion int64, write StateWrite) (*StateSnapshot, error)
	History(ctx context.Context, phone string, limit int) ([]models.Message, error)
}

// GormConversationStore keeps state in the conversations table and logs every
// transition to messages
type GormConversationStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewConversationStore creates a store on db
func NewConversationStore(db *gorm.DB) *GormConversationStore {
	return &GormConversationStore{db: db, now: time.Now}
}

// GetState returns the phone's state. Phones that predate the conversations
// table fall back to the newest system message that carried a state.
func (s *GormConversationStore) GetState(ctx context.Context, phone string) (*StateSnapshot, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).Where("phone = ?", phone).Take(&conv).Error
	if err == nil {
		return &StateSnapshot{
			State:     models.ConversationState(conv.State),
			Metadata:  cloneMeta(conv.Metadata),
			Version:   conv.Version,
			UpdatedAt: conv.UpdatedAt,
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	var last models.Message
	err = s.db.WithContext(ctx).
		Where("phone = ? AND author = ? AND state <> ''", phone, models.AuthorSystem).
		Order("created_at DESC").Order("id DESC").
		Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &StateSnapshot{State: models.StateNone, Metadata: datatypes.JSONMap{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last state message: %w", err)
	}

	return &StateSnapshot{
		State:     models.ConversationState(last.State),
		Metadata:  cloneMeta(last.Metadata),
		UpdatedAt: last.CreatedAt,
	}, nil
}

// SetState writes the new state if the stored version still equals expectedVersion
func (s *GormConversationStore) SetState(ctx context.Context, phone string, expectedVersion int64, write StateWrite) (*StateSnapshot, error) {
	now := s.now()
	meta := cloneMeta(write.Metadata)
	meta[models.MetaState] = string(write.State)
	snapshot := &StateSnapshot{State: write.State, Metadata: meta, Version: expectedVersion + 1, UpdatedAt: now}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Conversation{}).
			Where("phone = ? AND version = ?", phone, expectedVersion).
			Updates(map[string]interface{}{
				"state":      string(write.State),
				"metadata":   meta,
				"version":    gorm.Expr("version + 1"),
				"updated_at": now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update conversation: %w", result.Error)
		}

		if result.RowsAffected == 0 {
			if expectedVersion != 0 {
				return ErrStaleState
			}
			conv := models.Conversation{
				Phone:     phone,
				State:     string(write.State),
				Metadata:  meta,
				Version:   1,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Create(&conv).Error; err != nil {
				if isUniqueViolation(err) {
					return ErrStaleState
				}
				return fmt.Errorf("failed to create conversation: %w", err)
			}
		}

		entry := models.Message{
			Phone:          phone,
			Author:         models.AuthorSystem,
			Kind:           models.KindText,
			Body:           write.Body,
			State:          string(write.State),
			Metadata:       meta,
			ConversationID: phone,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if write.ExternalID != "" {
			id := write.ExternalID
			entry.ExternalID = &id
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to log state transition: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// History returns the phone's most recent messages, oldest first
func (s *GormConversationStore) History(ctx context.Context, phone string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("phone = ?", phone).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func cloneMeta(meta datatypes.JSONMap) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// isUniqueViolation matches the duplicate-key errors of PostgreSQL and SQLite
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
