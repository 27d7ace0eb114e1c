package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Roland735/cribmatch-website-sub000/config"
	"github.com/Roland735/cribmatch-website-sub000/models"
	"github.com/Roland735/cribmatch-website-sub000/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testPhone = "263771234567"

type chatHarness struct {
	t      *testing.T
	db     *gorm.DB
	sender *MockWhatsAppService
	store  *GormConversationStore
	bot    *ChatbotService
	now    time.Time
	seq    int
}

func newChatHarness(t *testing.T) *chatHarness {
	t.Helper()
	db := testutil.NewTestDB(t)
	h := &chatHarness{
		t:      t,
		db:     db,
		sender: NewMockWhatsAppService(),
		store:  NewConversationStore(db),
		now:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	h.store.now = clock

	payments := NewPaymentService(db, 1.00, "USD")
	payments.now = clock
	h.bot = NewChatbotService(ChatbotDeps{
		Store:    h.store,
		Messages: NewMessageLog(db),
		Dedup:    NewDedupGuard(db, nil, nil),
		Sender:   h.sender,
		Listings: NewListingService(db),
		Payments: payments,
	}, config.ConversationConfig{
		FreeWindowMs:       86400000,
		DraftTTL:           24 * time.Hour,
		SearchResultLimit:  3,
		DefaultCountryCode: "263",
	}, config.WhatsAppConfig{})
	h.bot.now = clock
	return h
}

func (h *chatHarness) send(text string) TurnResult {
	h.t.Helper()
	h.seq++
	return h.deliver(&InboundMessage{
		ID:        fmt.Sprintf("wamid.test.%d", h.seq),
		From:      testPhone,
		Text:      text,
		Kind:      models.KindText,
		Timestamp: h.now,
	})
}

func (h *chatHarness) deliver(msg *InboundMessage) TurnResult {
	h.t.Helper()
	h.now = h.now.Add(time.Second)
	return h.bot.HandleInbound(context.Background(), msg)
}

func (h *chatHarness) state() *StateSnapshot {
	h.t.Helper()
	snap, err := h.store.GetState(context.Background(), testPhone)
	require.NoError(h.t, err)
	return snap
}

func (h *chatHarness) lastText() string {
	h.t.Helper()
	last := h.sender.Last()
	require.NotNil(h.t, last)
	return last.Body
}

func (h *chatHarness) systemStates() []models.ConversationState {
	h.t.Helper()
	var rows []models.Message
	require.NoError(h.t, h.db.Where("phone = ? AND author = ?", testPhone, models.AuthorSystem).Order("id").Find(&rows).Error)
	states := make([]models.ConversationState, 0, len(rows))
	for _, r := range rows {
		states = append(states, models.ConversationState(r.State))
	}
	return states
}

func (h *chatHarness) searchBorrowdale() []string {
	h.t.Helper()
	seedListings(h.t, h.db,
		models.Listing{Title: "Garden cottage", Suburb: "Borrowdale", PricePerMonth: 180, ContactName: "Chipo", ContactWhatsApp: "263772000001"},
		models.Listing{Title: "Studio", Suburb: "Borrowdale", PricePerMonth: 150, ContactName: "Farai", ContactPhone: "263772000002"},
		models.Listing{Title: "Flat", Suburb: "Borrowdale", PricePerMonth: 200, ContactName: "Rudo", ContactWhatsApp: "263772000003"},
		models.Listing{Title: "Mansion", Suburb: "Borrowdale", PricePerMonth: 5000},
	)
	h.send("hi")
	h.send("2")
	result := h.send("Borrowdale, $200")
	require.Equal(h.t, models.StateSearchResults, result.State)
	ids := models.MetaStrings(h.state().Metadata, models.MetaListingIDs)
	require.Len(h.t, ids, 3)
	return ids
}

func TestFirstMessageShowsMenu(t *testing.T) {
	h := newChatHarness(t)

	result := h.send("good morning")
	assert.True(t, result.OK)
	assert.Equal(t, NoteHandled, result.Note)
	assert.Equal(t, models.StateAwaitingMenuChoice, result.State)

	last := h.sender.Last()
	require.NotNil(t, last)
	assert.Equal(t, "buttons", last.Type)
	assert.Equal(t, testPhone, last.To)
	require.Len(t, last.Buttons, 3)
	assert.Equal(t, "menu_list", last.Buttons[0].ID)
	assert.Equal(t, "menu_search", last.Buttons[1].ID)
	assert.Equal(t, "menu_purchases", last.Buttons[2].ID)
}

func TestMenuRepromptOnUnknownInput(t *testing.T) {
	h := newChatHarness(t)
	h.send("hi")
	before := h.state()

	result := h.send("xyz")
	assert.Equal(t, models.StateAwaitingMenuChoice, result.State)
	assert.Equal(t, models.StateAwaitingMenuChoice, h.state().State)
	assert.Equal(t, before.Version+1, h.state().Version, "the re-prompt is still logged")

	sent := h.sender.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, sent[0].Body, sent[1].Body)
	assert.Equal(t, "buttons", sent[1].Type)
}

func TestListingDraftAccumulation(t *testing.T) {
	h := newChatHarness(t)
	h.send("hi")
	assert.Equal(t, models.StateListingWaitTitle, h.send("menu_list").State)

	steps := []struct {
		input string
		state models.ConversationState
	}{
		{"2-bed flat", models.StateListingWaitSuburb},
		{"Avondale", models.StateListingWaitType},
		{"Apartment", models.StateListingWaitPrice},
		{"650", models.StateListingWaitBeds},
		{"2", models.StateListingWaitDesc},
	}
	for _, step := range steps {
		result := h.send(step.input)
		require.Equal(t, step.state, result.State, "after %q", step.input)
	}

	draft := models.DraftFromMetadata(h.state().Metadata)
	assert.Equal(t, models.ListingDraft{
		Title:         "2-bed flat",
		Suburb:        "Avondale",
		PropertyType:  "Apartment",
		PricePerMonth: 650,
		Bedrooms:      2,
	}, draft)

	result := h.send("skip")
	assert.Equal(t, models.StateListingCreated, result.State)

	var listings []models.Listing
	require.NoError(t, h.db.Find(&listings).Error)
	require.Len(t, listings, 1)
	l := listings[0]
	assert.Equal(t, "2-bed flat", l.Title)
	assert.Equal(t, "Avondale", l.Suburb)
	assert.Equal(t, "Apartment", l.PropertyType)
	assert.Equal(t, 650.0, l.PricePerMonth)
	assert.Equal(t, 2, l.Bedrooms)
	assert.Equal(t, "", l.Description)
	assert.Equal(t, models.ListingStatusPublished, l.Status)
	assert.Equal(t, testPhone, l.ListerPhoneNumber)

	assert.Contains(t, h.lastText(), l.ShortID)
	_, hasDraft := h.state().Metadata[models.MetaDraft]
	assert.False(t, hasDraft, "the draft is dropped once the listing exists")
}

func TestListingMissingNumbersDefaultToZero(t *testing.T) {
	h := newChatHarness(t)
	for _, input := range []string{"hi", "1", "Room", "Mbare", "Room", "ask me", "some", "Sunny room near shops"} {
		h.send(input)
	}

	assert.Equal(t, models.StateListingCreated, h.state().State)
	var l models.Listing
	require.NoError(t, h.db.Take(&l).Error)
	assert.Zero(t, l.PricePerMonth)
	assert.Zero(t, l.Bedrooms)
	assert.Equal(t, "Sunny room near shops", l.Description)
}

func TestListingStepsKeepZeroAndGreetings(t *testing.T) {
	h := newChatHarness(t)
	for _, input := range []string{"hi", "1", "Hello", "Avondale", "Studio", "0"} {
		h.send(input)
	}
	require.Equal(t, models.StateListingWaitBeds, h.state().State)

	result := h.send("0")
	assert.Equal(t, models.StateListingWaitDesc, result.State)

	draft := models.DraftFromMetadata(h.state().Metadata)
	assert.Equal(t, "Hello", draft.Title)
	assert.Equal(t, "Avondale", draft.Suburb)
	assert.Zero(t, draft.PricePerMonth)
	assert.Zero(t, draft.Bedrooms)

	h.send("Bright studio")
	var l models.Listing
	require.NoError(t, h.db.Take(&l).Error)
	assert.Equal(t, "Hello", l.Title)
	assert.Zero(t, l.Bedrooms)
}

func TestListingStepRejectsOutOfRangeAnswers(t *testing.T) {
	h := newChatHarness(t)
	h.send("hi")
	h.send("1")

	result := h.send(strings.Repeat("Lovely ", 20))
	assert.Equal(t, models.StateListingWaitTitle, result.State)
	assert.Contains(t, h.lastText(), "under 120 characters")
	assert.Contains(t, h.lastText(), msgAskTitle)

	for _, input := range []string{"2-bed flat", "Avondale", "Apartment", "650"} {
		h.send(input)
	}
	result = h.send("60")
	assert.Equal(t, models.StateListingWaitBeds, result.State)
	assert.Contains(t, h.lastText(), "from 0 to 50")
	assert.Equal(t, 650.0, models.DraftFromMetadata(h.state().Metadata).PricePerMonth)

	assert.Equal(t, models.StateListingWaitDesc, h.send("2").State)
	assert.Equal(t, models.StateListingCreated, h.send("skip").State)
}

func TestListingStepEscapes(t *testing.T) {
	for _, word := range []string{"cancel", "MENU"} {
		t.Run(word, func(t *testing.T) {
			h := newChatHarness(t)
			h.send("hi")
			h.send("1")
			h.send("Cottage")

			result := h.send(word)
			assert.Equal(t, models.StateAwaitingMenuChoice, result.State)
			_, hasDraft := h.state().Metadata[models.MetaDraft]
			assert.False(t, hasDraft)
		})
	}
}

type failingListings struct {
	ListingService
}

func (failingListings) Create(context.Context, *models.Listing) error {
	return errors.New("database is read-only")
}

func TestListingCreationFailureKeepsDraft(t *testing.T) {
	h := newChatHarness(t)
	h.bot.Listings = failingListings{ListingService: h.bot.Listings}

	for _, input := range []string{"hi", "1", "2-bed flat", "Avondale", "Apartment", "650", "2"} {
		h.send(input)
	}
	result := h.send("Close to schools")

	assert.Equal(t, models.StateListingWaitDesc, result.State)
	assert.Equal(t, msgListingFailed, h.lastText())
	assert.Equal(t, "2-bed flat", models.DraftFromMetadata(h.state().Metadata).Title)

	var count int64
	require.NoError(t, h.db.Model(&models.Listing{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSearchParsesAreaAndBudget(t *testing.T) {
	h := newChatHarness(t)
	h.send("hi")
	assert.Equal(t, models.StateSearchWaitAreaBudget, h.send("Search properties").State)

	ids := h.searchBorrowdale()

	sent := h.sender.Sent()
	summary := sent[len(sent)-2]
	assert.Equal(t, "text", summary.Type)
	assert.Contains(t, summary.Body, "Borrowdale")
	assert.Contains(t, summary.Body, "$200")
	assert.NotContains(t, summary.Body, "Mansion")
	assert.Contains(t, summary.Body, "1. ")
	assert.Contains(t, summary.Body, "3. ")

	buttons := sent[len(sent)-1]
	assert.Equal(t, "buttons", buttons.Type)
	require.Len(t, buttons.Buttons, 3)
	for i, b := range buttons.Buttons {
		assert.Equal(t, "view_"+ids[i], b.ID)
	}
}

func TestSearchWithoutResults(t *testing.T) {
	h := newChatHarness(t)
	h.send("hi")
	h.send("2")

	result := h.send("Nowhere $50")
	assert.Equal(t, models.StateSearchWaitAreaBudget, result.State)
	assert.Contains(t, h.lastText(), "No listings found in Nowhere")
}

func TestSelectionBounds(t *testing.T) {
	h := newChatHarness(t)
	ids := h.searchBorrowdale()

	result := h.send("4")
	assert.Equal(t, models.StateAwaitingListSelection, result.State)
	assert.Contains(t, strings.ToLower(h.lastText()), "invalid selection")
	assert.Equal(t, ids, models.MetaStrings(h.state().Metadata, models.MetaListingIDs))

	before := h.state()
	result = h.send("4")
	assert.Equal(t, models.StateAwaitingListSelection, result.State)
	assert.Contains(t, strings.ToLower(h.lastText()), "invalid selection")
	assert.Equal(t, before.State, h.state().State)

	result = h.send("two please")
	assert.Equal(t, models.StateAwaitingListSelection, result.State)
	assert.Contains(t, strings.ToLower(h.lastText()), "invalid selection")

	for _, input := range []string{"0", "hi"} {
		result = h.send(input)
		assert.Equal(t, models.StateAwaitingListSelection, result.State, "input %q", input)
		assert.Contains(t, strings.ToLower(h.lastText()), "invalid selection", "input %q", input)
	}
	assert.Equal(t, ids, models.MetaStrings(h.state().Metadata, models.MetaListingIDs))

	result = h.send("2")
	assert.Equal(t, models.StateContactRevealed, result.State)

	var second models.Listing
	require.NoError(t, h.db.Take(&second, ids[1]).Error)
	reveal := h.lastText()
	assert.Contains(t, reveal, second.Title)
	assert.Contains(t, reveal, second.ContactName)
	assert.Contains(t, reveal, "+"+second.ContactNumber())
	assert.Equal(t, ids[1], h.state().Metadata[models.MetaListingID])
}

func TestZeroFromSearchResultsIsInvalidSelection(t *testing.T) {
	h := newChatHarness(t)
	h.searchBorrowdale()

	result := h.send("0")
	assert.Equal(t, models.StateAwaitingListSelection, result.State)
	assert.Contains(t, strings.ToLower(h.lastText()), "invalid selection")

	result = h.send("cancel")
	assert.Equal(t, models.StateAwaitingMenuChoice, result.State)
}

func TestRevealListsFeatures(t *testing.T) {
	h := newChatHarness(t)
	l := seedListings(t, h.db, models.Listing{
		Title:           "Garden cottage",
		Suburb:          "Borrowdale",
		ContactWhatsApp: "263772000001",
		Features:        models.EncodeStrings([]string{"borehole", "solar"}),
	})[0]

	result := h.send("view_" + strconv.FormatUint(uint64(l.ID), 10))
	assert.Equal(t, models.StateContactRevealed, result.State)
	assert.Contains(t, h.lastText(), "Features: borehole, solar")
}

func TestViewButtonRevealsContact(t *testing.T) {
	h := newChatHarness(t)
	ids := h.searchBorrowdale()

	result := h.send("view_" + ids[0])
	assert.Equal(t, models.StateContactRevealed, result.State)
	assert.Contains(t, h.lastText(), "https://wa.me/")

	result = h.send("view_999999")
	assert.Equal(t, models.StateContactRevealed, result.State)
	assert.Equal(t, msgListingGone, h.lastText())
}

func TestRevealIncludesPhotoLink(t *testing.T) {
	h := newChatHarness(t)
	s3Mock := NewMockS3Service()
	s3Mock.AddObject("listings/front.jpg")
	h.bot.Images = NewImageService(s3Mock)

	l := seedListings(t, h.db, models.Listing{
		Title:        "Garden cottage",
		Suburb:       "Borrowdale",
		ContactEmail: "owner@example.com",
		Images:       models.EncodeStrings([]string{"listings/front.jpg"}),
	})[0]

	h.send("view_" + strconv.FormatUint(uint64(l.ID), 10))
	text := h.lastText()
	assert.Contains(t, text, "owner@example.com")
	assert.Contains(t, text, "https://mock-s3.example.com/listings/front.jpg")
}

func TestSendWindowGate(t *testing.T) {
	h := newChatHarness(t)

	result := h.deliver(&InboundMessage{
		ID:        "wamid.old",
		From:      testPhone,
		Text:      "hi",
		Kind:      models.KindText,
		Timestamp: h.now.Add(-86400001 * time.Millisecond),
	})
	assert.True(t, result.OK)
	assert.Equal(t, NoteOutsideWindow, result.Note)
	assert.Empty(t, h.sender.Sent())
	assert.Equal(t, models.StateNone, h.state().State)

	var stored models.Message
	require.NoError(t, h.db.Where("external_id = ?", "wamid.old").Take(&stored).Error)
	assert.True(t, stored.NeedsFollowUp)
	assert.True(t, stored.Handled)
	assert.Equal(t, true, stored.Metadata[models.MetaNeedsFollowUp])
	assert.Equal(t, true, stored.Metadata[models.MetaHandledInbound])
}

func TestMissingTimestampCountsAsNow(t *testing.T) {
	h := newChatHarness(t)

	result := h.deliver(&InboundMessage{ID: "wamid.nots", From: testPhone, Text: "hi"})
	assert.Equal(t, NoteHandled, result.Note)
	assert.Len(t, h.sender.Sent(), 1)
}

func TestDedupIdempotence(t *testing.T) {
	h := newChatHarness(t)
	msg := &InboundMessage{ID: "wamid.same", From: testPhone, Text: "hi", Kind: models.KindText, Timestamp: h.now}

	first := h.deliver(msg)
	second := h.deliver(msg)

	assert.Equal(t, NoteHandled, first.Note)
	assert.True(t, second.Duplicate)
	assert.Equal(t, NoteDuplicate, second.Note)
	assert.Len(t, h.sender.Sent(), 1)
	assert.Len(t, h.systemStates(), 1)
}

func TestMessagesWithoutIDAreNotDeduplicated(t *testing.T) {
	h := newChatHarness(t)
	msg := &InboundMessage{From: testPhone, Text: "hi", Timestamp: h.now}

	h.deliver(msg)
	h.deliver(msg)
	assert.Len(t, h.sender.Sent(), 2)
}

func TestStateMonotonicity(t *testing.T) {
	h := newChatHarness(t)
	seedListings(t, h.db, models.Listing{Title: "Flat", Suburb: "Avondale", PricePerMonth: 300, ShortID: "FL2T"})

	script := []string{
		"hello", "nonsense", "1", "Cottage", "Highlands", "House", "$900", "3", "Big garden",
		"2", "Avondale 400", "7", "x", "1", "3", "menu", "CONTACT FL2T", "whatever",
		"search", "Avondale", "view_0", "cancel", "purchases",
	}
	for _, input := range script {
		result := h.send(input)
		require.True(t, result.OK, "input %q: %s", input, result.Note)
	}

	states := h.systemStates()
	require.Len(t, states, len(script))
	prev := models.StateNone
	for i, next := range states {
		assert.True(t, models.AllowedTransition(prev, next), "step %d (%q): %s -> %s", i, script[i], prev, next)
		prev = next
	}
}

func TestContactAndPaidCommands(t *testing.T) {
	h := newChatHarness(t)
	l := seedListings(t, h.db, models.Listing{
		Title:           "Garden cottage",
		Suburb:          "Borrowdale",
		ShortID:         "GC42",
		ContactName:     "Chipo",
		ContactWhatsApp: "263772000001",
	})[0]

	result := h.send("contact gc42")
	assert.Equal(t, models.StateContactPaymentPending, result.State)
	instructions := h.lastText()
	assert.Contains(t, instructions, "USD 1.00")

	paymentID, _ := h.state().Metadata[models.MetaPaymentID].(string)
	require.NotEmpty(t, paymentID)
	assert.Contains(t, instructions, "PAID "+paymentID)
	assert.Equal(t, strconv.FormatUint(uint64(l.ID), 10), h.state().Metadata[models.MetaListingID])

	result = h.send("PAID 00000000-0000-0000-0000-000000000000")
	assert.Equal(t, models.StateContactPaymentPending, result.State, "unknown references leave the state alone")
	assert.Contains(t, h.lastText(), "couldn't find a pending payment")

	result = h.send("paid " + paymentID)
	assert.Equal(t, models.StateContactRevealed, result.State)
	assert.Contains(t, h.lastText(), "Chipo")
	assert.Contains(t, h.lastText(), "https://wa.me/263772000001")

	var payment models.ContactPayment
	require.NoError(t, h.db.Take(&payment, "id = ?", paymentID).Error)
	assert.Equal(t, models.PaymentStatusPaid, payment.Status)

	result = h.send("3")
	assert.Equal(t, models.StateShowPurchases, result.State)
	assert.Contains(t, h.lastText(), "Garden cottage")
}

func TestContactUnknownListing(t *testing.T) {
	h := newChatHarness(t)
	h.send("hi")

	result := h.send("CONTACT NOPE")
	assert.Equal(t, models.StateAwaitingMenuChoice, result.State)
	assert.Equal(t, msgListingGone, h.lastText())
}

func TestPurchasesWhenEmpty(t *testing.T) {
	h := newChatHarness(t)
	h.send("hi")

	result := h.send("View my purchases")
	assert.Equal(t, models.StateShowPurchases, result.State)
	assert.Contains(t, h.lastText(), "haven't unlocked any contacts")
}

func TestTerminalStateAcceptsMenuChoice(t *testing.T) {
	h := newChatHarness(t)
	h.send("hi")
	h.send("3")

	assert.Equal(t, models.StateListingWaitTitle, h.send("1").State)

	h.send("menu")
	h.send("3")
	assert.Equal(t, models.StateAwaitingMenuChoice, h.send("thanks").State)
}

func TestDraftExpiry(t *testing.T) {
	h := newChatHarness(t)
	h.send("hi")
	h.send("1")
	h.send("2-bed flat")
	require.Equal(t, models.StateListingWaitSuburb, h.state().State)

	h.now = h.now.Add(25 * time.Hour)
	result := h.send("Avondale")

	assert.Equal(t, models.StateAwaitingMenuChoice, result.State)
	sent := h.sender.Sent()
	assert.Equal(t, msgSessionExpired, sent[len(sent)-2].Body)
	assert.Equal(t, "buttons", sent[len(sent)-1].Type)
	_, hasDraft := h.state().Metadata[models.MetaDraft]
	assert.False(t, hasDraft)
}

func TestWindowClosedFlagsTemplateRequired(t *testing.T) {
	h := newChatHarness(t)
	h.sender.WindowClosed = true

	result := h.send("hi")
	assert.Equal(t, models.StateAwaitingMenuChoice, result.State)

	var stored models.Message
	require.NoError(t, h.db.Where("external_id = ?", "wamid.test.1").Take(&stored).Error)
	assert.True(t, stored.TemplateRequired)
	assert.False(t, stored.NeedsFollowUp)
}

func TestFlowReplyRunsSearch(t *testing.T) {
	h := newChatHarness(t)
	seedListings(t, h.db, models.Listing{Title: "Flat", Suburb: "Borrowdale", PricePerMonth: 200})

	result := h.deliver(&InboundMessage{
		ID:        "wamid.flow",
		From:      testPhone,
		Text:      "Sent",
		Kind:      models.KindInteractive,
		Timestamp: h.now,
		FlowReply: map[string]interface{}{"area": "Borrowdale", "budget": "250"},
	})
	assert.Equal(t, models.StateSearchResults, result.State)
	assert.Len(t, models.MetaStrings(h.state().Metadata, models.MetaListingIDs), 1)
}

func TestSearchMenuStartsFlowWhenEnabled(t *testing.T) {
	h := newChatHarness(t)
	h.bot.flowID = "flow-123"
	h.bot.flowSearch = true

	h.send("hi")
	h.send("2")

	last := h.sender.Last()
	require.NotNil(t, last)
	require.Equal(t, "flow", last.Type)
	assert.Equal(t, "flow-123", last.Flow.FlowID)
	assert.True(t, strings.HasPrefix(last.Flow.FlowToken, testPhone+":"))
	assert.Equal(t, FlowScreenSearch, last.Flow.Screen)
}

func TestLocalPhoneNumbersAreCanonicalized(t *testing.T) {
	h := newChatHarness(t)

	h.deliver(&InboundMessage{ID: "wamid.local", From: "0771234567", Text: "hi", Timestamp: h.now})
	assert.Equal(t, models.StateAwaitingMenuChoice, h.state().State)
	assert.Equal(t, testPhone, h.sender.Last().To)
}

func TestIgnoresMessagesWithoutSender(t *testing.T) {
	h := newChatHarness(t)

	assert.Equal(t, NoteIgnored, h.bot.HandleInbound(context.Background(), nil).Note)
	assert.Equal(t, NoteIgnored, h.deliver(&InboundMessage{ID: "x", Text: "hi"}).Note)
	assert.Empty(t, h.sender.Sent())
}

type staleStore struct {
	ConversationStore
}

func (staleStore) SetState(context.Context, string, int64, StateWrite) (*StateSnapshot, error) {
	return nil, ErrStaleState
}

func TestStaleWriteIsReported(t *testing.T) {
	h := newChatHarness(t)
	h.bot.Store = staleStore{ConversationStore: h.store}

	result := h.send("hi")
	assert.True(t, result.OK)
	assert.Equal(t, NoteStaleState, result.Note)
	assert.Equal(t, models.StateNone, h.state().State)
}

func TestHandleStatuses(t *testing.T) {
	h := newChatHarness(t)
	h.send("hi")

	matched := h.bot.HandleStatuses(context.Background(), []DeliveryStatus{
		{MessageID: "wamid.mock.1", Status: "delivered", RecipientID: testPhone},
		{MessageID: "wamid.unknown", Status: "read", RecipientID: testPhone},
	})
	assert.Equal(t, 1, matched)

	var out models.Message
	require.NoError(t, h.db.Where("external_id = ?", "wamid.mock.1").Take(&out).Error)
	assert.Equal(t, models.AuthorSystem, out.Author)
	assert.Equal(t, "delivered", out.DeliveryStatus)
}

func TestRecordFlowSearch(t *testing.T) {
	h := newChatHarness(t)
	h.send("hi")

	err := h.bot.RecordFlowSearch(context.Background(), testPhone, []models.Listing{{ID: 7}, {ID: 9}})
	require.NoError(t, err)

	snap := h.state()
	assert.Equal(t, models.StateSearchResults, snap.State)
	assert.Equal(t, []string{"7", "9"}, models.MetaStrings(snap.Metadata, models.MetaListingIDs))
}
