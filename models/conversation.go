package models

import (
	"time"

	"gorm.io/datatypes"
)

// ConversationState names a step of the WhatsApp chatbot
type ConversationState string

// Chatbot states. StateNone means no conversation has started.
const (
	StateNone                  ConversationState = ""
	StateAwaitingMenuChoice    ConversationState = "AWAITING_MENU_CHOICE"
	StateListingWaitTitle      ConversationState = "LISTING_WAIT_TITLE"
	StateListingWaitSuburb     ConversationState = "LISTING_WAIT_SUBURB"
	StateListingWaitType       ConversationState = "LISTING_WAIT_TYPE"
	StateListingWaitPrice      ConversationState = "LISTING_WAIT_PRICE"
	StateListingWaitBeds       ConversationState = "LISTING_WAIT_BEDS"
	StateListingWaitDesc       ConversationState = "LISTING_WAIT_DESC"
	StateListingCreated        ConversationState = "LISTING_CREATED"
	StateSearchWaitAreaBudget  ConversationState = "SEARCH_WAIT_AREA_BUDGET"
	StateSearchResults         ConversationState = "SEARCH_RESULTS"
	StateAwaitingListSelection ConversationState = "AWAITING_LIST_SELECTION"
	StateContactRevealed       ConversationState = "CONTACT_REVEALED"
	StateContactPaymentPending ConversationState = "CONTACT_PAYMENT_PENDING"
	StateShowPurchases         ConversationState = "SHOW_PURCHASES"
)

// menuEntries are the states a menu choice or global command can lead to.
var menuEntries = []ConversationState{
	StateAwaitingMenuChoice,
	StateListingWaitTitle,
	StateSearchWaitAreaBudget,
	StateShowPurchases,
	StateContactPaymentPending,
	StateContactRevealed,
	StateSearchResults,
}

var transitions = map[ConversationState][]ConversationState{
	StateNone:                  menuEntries,
	StateAwaitingMenuChoice:    menuEntries,
	StateListingWaitTitle:      append([]ConversationState{StateListingWaitSuburb}, menuEntries...),
	StateListingWaitSuburb:     append([]ConversationState{StateListingWaitType}, menuEntries...),
	StateListingWaitType:       append([]ConversationState{StateListingWaitPrice}, menuEntries...),
	StateListingWaitPrice:      append([]ConversationState{StateListingWaitBeds}, menuEntries...),
	StateListingWaitBeds:       append([]ConversationState{StateListingWaitDesc}, menuEntries...),
	StateListingWaitDesc:       append([]ConversationState{StateListingWaitDesc, StateListingCreated}, menuEntries...),
	StateListingCreated:        menuEntries,
	StateSearchWaitAreaBudget:  menuEntries,
	StateSearchResults:         append([]ConversationState{StateAwaitingListSelection}, menuEntries...),
	StateAwaitingListSelection: append([]ConversationState{StateAwaitingListSelection}, menuEntries...),
	StateContactRevealed:       menuEntries,
	StateContactPaymentPending: menuEntries,
	StateShowPurchases:         menuEntries,
}

// AllowedTransition reports whether the chatbot may move from one state to another.
// Staying in the same state is always allowed.
func AllowedTransition(from, to ConversationState) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Known reports whether the state is part of the chatbot graph
func (s ConversationState) Known() bool {
	_, ok := transitions[s]
	return ok
}

// IsInProgress reports whether the state holds a half-finished draft or search
func (s ConversationState) IsInProgress() bool {
	switch s {
	case StateListingWaitTitle, StateListingWaitSuburb, StateListingWaitType,
		StateListingWaitPrice, StateListingWaitBeds, StateListingWaitDesc,
		StateSearchWaitAreaBudget, StateAwaitingListSelection:
		return true
	}
	return false
}

// IsListingStep reports whether the state is collecting an answer for a listing draft
func (s ConversationState) IsListingStep() bool {
	switch s {
	case StateListingWaitTitle, StateListingWaitSuburb, StateListingWaitType,
		StateListingWaitPrice, StateListingWaitBeds, StateListingWaitDesc:
		return true
	}
	return false
}

// IsTerminal reports whether the state ends a flow
func (s ConversationState) IsTerminal() bool {
	switch s {
	case StateListingCreated, StateContactRevealed, StateShowPurchases, StateContactPaymentPending:
		return true
	}
	return false
}

// Conversation is the per-phone chatbot aggregate.
// Version is bumped on every write and guards concurrent turns.
type Conversation struct {
	Phone     string            `gorm:"primaryKey;size:32" json:"phone"`
	State     string            `gorm:"not null;index" json:"state"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	Version   int64             `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// TableName specifies the table name for the Conversation model
func (Conversation) TableName() string {
	return "conversations"
}
