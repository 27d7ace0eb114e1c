package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Roland735/cribmatch-website-sub000/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrPaymentNotFound is returned when a payment reference does not match a pending payment
var ErrPaymentNotFound = errors.New("payment not found")

// PaymentService tracks contact-unlock payments
type PaymentService interface {
	CreatePending(ctx context.Context, phone string, listingID uint) (*models.ContactPayment, error)
	FindPending(ctx context.Context, phone, reference string) (*models.ContactPayment, error)
	MarkPaid(ctx context.Context, payment *models.ContactPayment) error
	ListPaid(ctx context.Context, phone string) ([]models.ContactPayment, error)
}

// GormPaymentService stores payments in contact_payments
type GormPaymentService struct {
	db       *gorm.DB
	amount   float64
	currency string
	now      func() time.Time
}

// NewPaymentService creates a payment service charging amount per unlock
func NewPaymentService(db *gorm.DB, amount float64, currency string) *GormPaymentService {
	if currency == "" {
		currency = "USD"
	}
	return &GormPaymentService{db: db, amount: amount, currency: currency, now: time.Now}
}

// CreatePending opens a payment request whose id is the reference quoted back by the user
func (s *GormPaymentService) CreatePending(ctx context.Context, phone string, listingID uint) (*models.ContactPayment, error) {
	payment := models.ContactPayment{
		ID:        uuid.NewString(),
		Phone:     phone,
		ListingID: listingID,
		Amount:    s.amount,
		Currency:  s.currency,
		Status:    models.PaymentStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(&payment).Error; err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	return &payment, nil
}

// FindPending looks up a pending payment owned by phone
func (s *GormPaymentService) FindPending(ctx context.Context, phone, reference string) (*models.ContactPayment, error) {
	reference = strings.ToLower(strings.TrimSpace(reference))
	if _, err := uuid.Parse(reference); err != nil {
		return nil, ErrPaymentNotFound
	}

	var payment models.ContactPayment
	err := s.db.WithContext(ctx).
		Where("id = ? AND phone = ? AND status = ?", reference, phone, models.PaymentStatusPending).
		Take(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return &payment, nil
}

// MarkPaid settles a pending payment
func (s *GormPaymentService) MarkPaid(ctx context.Context, payment *models.ContactPayment) error {
	now := s.now()
	result := s.db.WithContext(ctx).Model(&models.ContactPayment{}).
		Where("id = ? AND status = ?", payment.ID, models.PaymentStatusPending).
		Updates(map[string]interface{}{"status": models.PaymentStatusPaid, "paid_at": now})
	if result.Error != nil {
		return fmt.Errorf("failed to mark payment paid: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPaymentNotFound
	}
	payment.Status = models.PaymentStatusPaid
	payment.PaidAt = &now
	return nil
}

// ListPaid returns the phone's unlocked contacts, newest first
func (s *GormPaymentService) ListPaid(ctx context.Context, phone string) ([]models.ContactPayment, error) {
	var payments []models.ContactPayment
	err := s.db.WithContext(ctx).
		Preload("Listing").
		Where("phone = ? AND status = ?", phone, models.PaymentStatusPaid).
		Order("paid_at DESC").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}
