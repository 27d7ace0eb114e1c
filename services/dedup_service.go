package services

import (
	"context"
	"errors"
	"time"

	"github.com/Roland735/cribmatch-website-sub000/logger"
	"github.com/Roland735/cribmatch-website-sub000/models"
	"gorm.io/gorm"
)

const defaultDedupTTL = 10 * time.Minute

// DedupGuard remembers which inbound message ids have already been handled
type DedupGuard interface {
	IsHandled(ctx context.Context, messageID string) bool
	MarkHandled(ctx context.Context, phone, messageID string)
}

// GormDedupGuard uses the handled column of the message log, with a cache
// for when the row is missing or the database is unreachable
type GormDedupGuard struct {
	db    *gorm.DB
	cache HandledCache
	log   *logger.Logger
}

// NewDedupGuard creates a dedup guard; a nil cache gets an in-memory one
func NewDedupGuard(db *gorm.DB, cache HandledCache, log *logger.Logger) *GormDedupGuard {
	if cache == nil {
		cache = NewMemoryHandledCache(defaultDedupTTL)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &GormDedupGuard{db: db, cache: cache, log: log.WithComponent("dedup")}
}

// IsHandled reports whether messageID was processed before. Empty ids are never duplicates.
func (g *GormDedupGuard) IsHandled(ctx context.Context, messageID string) bool {
	if messageID == "" {
		return false
	}

	var count int64
	err := g.db.WithContext(ctx).Model(&models.Message{}).
		Where("external_id = ? AND author = ? AND handled = ?", messageID, models.AuthorUser, true).
		Count(&count).Error
	if err != nil {
		g.log.WithMessageID(messageID).WithError(err).Warn("dedup lookup failed, using cache")
	} else if count > 0 {
		return true
	}
	return g.cache.Seen(ctx, messageID)
}

// MarkHandled flags the logged inbound message. When there is no row to flag
// the id goes to the cache instead.
func (g *GormDedupGuard) MarkHandled(ctx context.Context, phone, messageID string) {
	if messageID == "" {
		return
	}

	n, err := raiseFlags(ctx, g.db, func(q *gorm.DB) *gorm.DB {
		return q.Where("external_id = ? AND author = ?", messageID, models.AuthorUser)
	}, nil, flagHandled)
	if err == nil && n == 0 {
		err = errors.New("no inbound row to mark")
	}
	if err != nil {
		g.log.WithPhone(phone).WithMessageID(messageID).WithError(err).Debug("marking handled in cache")
		g.cache.Remember(ctx, messageID)
	}
}
