package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationTableName(t *testing.T) {
	assert.Equal(t, "conversations", Conversation{}.TableName())
	assert.Equal(t, "messages", Message{}.TableName())
	assert.Equal(t, "webhook_events", WebhookEvent{}.TableName())
	assert.Equal(t, "contact_payments", ContactPayment{}.TableName())
	assert.Equal(t, "listings", Listing{}.TableName())
}

func TestAllowedTransition(t *testing.T) {
	tests := []struct {
		name string
		from ConversationState
		to   ConversationState
		want bool
	}{
		{"first contact shows menu", StateNone, StateAwaitingMenuChoice, true},
		{"menu to listing", StateAwaitingMenuChoice, StateListingWaitTitle, true},
		{"menu to search", StateAwaitingMenuChoice, StateSearchWaitAreaBudget, true},
		{"menu to purchases", StateAwaitingMenuChoice, StateShowPurchases, true},
		{"title to suburb", StateListingWaitTitle, StateListingWaitSuburb, true},
		{"desc to created", StateListingWaitDesc, StateListingCreated, true},
		{"search to results", StateSearchWaitAreaBudget, StateSearchResults, true},
		{"results to selection", StateSearchResults, StateAwaitingListSelection, true},
		{"selection to reveal", StateAwaitingListSelection, StateContactRevealed, true},
		{"same state", StateListingWaitPrice, StateListingWaitPrice, true},
		{"skip listing steps", StateListingWaitTitle, StateListingWaitPrice, false},
		{"create without description", StateListingWaitBeds, StateListingCreated, false},
		{"reveal straight from menu prompt", StateListingWaitTitle, StateAwaitingListSelection, false},
		{"jump into listing flow", StateNone, StateListingWaitDesc, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AllowedTransition(tt.from, tt.to))
		})
	}
}

func TestConversationStateClassification(t *testing.T) {
	assert.True(t, StateListingWaitBeds.IsInProgress())
	assert.True(t, StateSearchWaitAreaBudget.IsInProgress())
	assert.True(t, StateAwaitingListSelection.IsInProgress())
	assert.False(t, StateAwaitingMenuChoice.IsInProgress())
	assert.False(t, StateNone.IsInProgress())

	assert.True(t, StateListingCreated.IsTerminal())
	assert.True(t, StateContactRevealed.IsTerminal())
	assert.False(t, StateSearchResults.IsTerminal())

	assert.True(t, StateListingWaitTitle.IsListingStep())
	assert.True(t, StateListingWaitDesc.IsListingStep())
	assert.False(t, StateListingCreated.IsListingStep())
	assert.False(t, StateAwaitingListSelection.IsListingStep())
}
