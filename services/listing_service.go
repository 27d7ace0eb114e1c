package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Roland735/cribmatch-website-sub000/models"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrListingNotFound is returned when no published listing matches a reference
var ErrListingNotFound = errors.New("listing not found")

// ListingFilters narrows a search over published listings
type ListingFilters struct {
	Suburb       string
	City         string
	PropertyType string
	MaxPrice     float64
	MinBedrooms  int
	Limit        int
}

// ListingPage is one page of search results
type ListingPage struct {
	Listings []models.Listing
	Total    int64
}

// ListingService reads and creates marketplace listings
type ListingService interface {
	GetByID(ctx context.Context, ref string) (*models.Listing, error)
	GetByReference(ctx context.Context, ref string) (*models.Listing, error)
	ValidateField(listing *models.Listing, field string) error
	SearchPublished(ctx context.Context, filters ListingFilters) (*ListingPage, error)
	Create(ctx context.Context, listing *models.Listing) error
}

// GormListingService implements ListingService on the listings table
type GormListingService struct {
	db       *gorm.DB
	validate *validator.Validate
}

// NewListingService creates a listing service on db
func NewListingService(db *gorm.DB) *GormListingService {
	return &GormListingService{db: db, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// GetByID loads a published listing by its numeric id
func (s *GormListingService) GetByID(ctx context.Context, ref string) (*models.Listing, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(ref), 10, 64)
	if err != nil {
		return nil, ErrListingNotFound
	}
	return s.first(s.published(ctx).Where("id = ?", id))
}

// GetByReference resolves what a user typed: a short id, or failing that a numeric id.
// Short ids can be all digits, so they win over a primary key with the same digits.
func (s *GormListingService) GetByReference(ctx context.Context, ref string) (*models.Listing, error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if ref == "" {
		return nil, ErrListingNotFound
	}

	listing, err := s.first(s.published(ctx).Where("short_id = ?", ref))
	if !errors.Is(err, ErrListingNotFound) {
		return listing, err
	}
	return s.GetByID(ctx, ref)
}

// ValidateField checks a single field of a listing against its validation tags
func (s *GormListingService) ValidateField(listing *models.Listing, field string) error {
	if err := s.validate.StructPartial(listing, field); err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	return nil
}

func (s *GormListingService) published(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Where("status = ?", models.ListingStatusPublished)
}

func (s *GormListingService) first(query *gorm.DB) (*models.Listing, error) {
	var listing models.Listing
	if err := query.Take(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}
	return &listing, nil
}

// SearchPublished returns the newest published listings matching filters.
// Text filters match case-insensitive substrings; zero numeric filters are ignored.
func (s *GormListingService) SearchPublished(ctx context.Context, filters ListingFilters) (*ListingPage, error) {
	query := s.db.WithContext(ctx).Model(&models.Listing{}).Where("status = ?", models.ListingStatusPublished)

	if suburb := strings.TrimSpace(filters.Suburb); suburb != "" {
		query = query.Where("LOWER(suburb) LIKE ? ESCAPE '\\'", likePattern(suburb))
	}
	if city := strings.TrimSpace(filters.City); city != "" {
		query = query.Where("LOWER(city) LIKE ? ESCAPE '\\'", likePattern(city))
	}
	if propertyType := strings.TrimSpace(filters.PropertyType); propertyType != "" {
		query = query.Where("LOWER(property_type) LIKE ? ESCAPE '\\'", likePattern(propertyType))
	}
	if filters.MaxPrice > 0 {
		query = query.Where("price_per_month <= ?", filters.MaxPrice)
	}
	if filters.MinBedrooms > 0 {
		query = query.Where("bedrooms >= ?", filters.MinBedrooms)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count listings: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 3
	}
	var listings []models.Listing
	err := query.
		Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true}).
		Order("id DESC").
		Limit(limit).
		Find(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	return &ListingPage{Listings: listings, Total: total}, nil
}

// Create validates and stores a listing, registering the lister as a user
func (s *GormListingService) Create(ctx context.Context, listing *models.Listing) error {
	if err := s.validate.Struct(listing); err != nil {
		return fmt.Errorf("invalid listing: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if listing.ListerPhoneNumber != "" {
			lister := models.User{Phone: listing.ListerPhoneNumber, Name: listing.ListerName, Role: models.RoleUser}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "phone"}},
				DoNothing: true,
			}).Create(&lister).Error
			if err != nil {
				return fmt.Errorf("failed to register lister: %w", err)
			}
		}
		if err := tx.Create(listing).Error; err != nil {
			return fmt.Errorf("failed to create listing: %w", err)
		}
		return nil
	})
}

func likePattern(value string) string {
	value = strings.ToLower(value)
	value = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(value)
	return "%" + value + "%"
}
