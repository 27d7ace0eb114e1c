package services

import (
	"context"
	"strings"
	"testing"

	"github.com/Roland735/cribmatch-website-sub000/models"
	"github.com/Roland735/cribmatch-website-sub000/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentLifecycle(t *testing.T) {
	db := testutil.NewTestDB(t)
	listing := seedListings(t, db, models.Listing{Title: "Garden cottage", Suburb: "Borrowdale"})[0]
	svc := NewPaymentService(db, 1.00, "USD")
	ctx := context.Background()
	phone := "263771234567"

	payment, err := svc.CreatePending(ctx, phone, listing.ID)
	require.NoError(t, err)
	assert.Len(t, payment.ID, 36)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Equal(t, 1.00, payment.Amount)

	_, err = svc.FindPending(ctx, "263770000000", payment.ID)
	assert.ErrorIs(t, err, ErrPaymentNotFound, "references are scoped to the phone")
	_, err = svc.FindPending(ctx, phone, "not-a-reference")
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	found, err := svc.FindPending(ctx, phone, strings.ToUpper(payment.ID))
	require.NoError(t, err)
	require.NoError(t, svc.MarkPaid(ctx, found))
	assert.Equal(t, models.PaymentStatusPaid, found.Status)
	assert.NotNil(t, found.PaidAt)

	assert.ErrorIs(t, svc.MarkPaid(ctx, found), ErrPaymentNotFound, "a payment settles once")
	_, err = svc.FindPending(ctx, phone, payment.ID)
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	paid, err := svc.ListPaid(ctx, phone)
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, "Garden cottage", paid[0].Listing.Title)
}
