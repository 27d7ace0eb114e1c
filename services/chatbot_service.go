package services

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Roland735/cribmatch-website-sub000/config"
	"github.com/Roland735/cribmatch-website-sub000/logger"
	"github.com/Roland735/cribmatch-website-sub000/models"
	"github.com/Roland735/cribmatch-website-sub000/utils"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Turn notes returned to the webhook caller
const (
	NoteHandled          = "handled"
	NoteIgnored          = "ignored"
	NoteDuplicate        = "duplicate"
	NoteOutsideWindow    = "outside-free-window"
	NoteStaleState       = "stale-state"
	NoteStateError       = "state-error"
	NoteInvalidNextState = "invalid-transition"
)

var (
	contactCommand = regexp.MustCompile(`(?i)^contact\s+(\S+)$`)
	paidCommand    = regexp.MustCompile(`(?i)^paid\s+(\S+)$`)
)

var menuKeywords = map[string]bool{
	"menu": true, "hi": true, "hello": true, "start": true, "restart": true, "cancel": true,
}

// escapeKeywords are the only menu words honoured while a step is reading input
var escapeKeywords = map[string]bool{"menu": true, "cancel": true}

// TurnResult summarises how one inbound message was handled
type TurnResult struct {
	OK        bool                     `json:"ok"`
	Note      string                   `json:"note"`
	State     models.ConversationState `json:"state,omitempty"`
	Duplicate bool                     `json:"duplicate,omitempty"`
}

// ChatbotDeps are the collaborators of the conversation router
type ChatbotDeps struct {
	Store    ConversationStore
	Messages MessageLog
	Dedup    DedupGuard
	Locker   TurnLocker
	Sender   WhatsAppService
	Listings ListingService
	Payments PaymentService
	Images   ImageService
	Log      *logger.Logger
}

// ChatbotService is the WhatsApp conversation state machine
type ChatbotService struct {
	ChatbotDeps
	cfg        config.ConversationConfig
	flowID     string
	flowSearch bool
	now        func() time.Time
}

// NewChatbotService wires the router. Images and Locker are optional.
func NewChatbotService(deps ChatbotDeps, cfg config.ConversationConfig, wa config.WhatsAppConfig) *ChatbotService {
	if deps.Log == nil {
		deps.Log = logger.Discard()
	}
	if deps.Locker == nil {
		deps.Locker = NewMemoryTurnLocker()
	}
	if deps.Images == nil {
		deps.Images = NewImageService(nil)
	}
	if cfg.SearchResultLimit <= 0 {
		cfg.SearchResultLimit = 3
	}
	deps.Log = deps.Log.WithComponent("chatbot")
	return &ChatbotService{
		ChatbotDeps: deps,
		cfg:         cfg,
		flowID:      wa.FlowID,
		flowSearch:  wa.FlowSearch,
		now:         time.Now,
	}
}

// turn is the working state of one inbound message
type turn struct {
	ctx   context.Context
	phone string
	msg   *InboundMessage
	input string
	lower string
	snap  *StateSnapshot
	log   *logger.Logger

	next         models.ConversationState
	meta         datatypes.JSONMap
	replies      []string
	firstID      string
	windowClosed bool
}

func (t *turn) moveTo(state models.ConversationState, meta datatypes.JSONMap) {
	t.next = state
	if meta == nil {
		meta = datatypes.JSONMap{}
	}
	t.meta = meta
}

func (t *turn) stay() {
	t.moveTo(t.snap.State, cloneMeta(t.snap.Metadata))
}

// HandleInbound runs one conversational turn for a normalized message
func (s *ChatbotService) HandleInbound(ctx context.Context, msg *InboundMessage) TurnResult {
	if msg == nil || strings.TrimSpace(msg.From) == "" {
		return TurnResult{OK: true, Note: NoteIgnored}
	}

	inbound := *msg
	inbound.From = utils.CanonicalPhone(msg.From, s.cfg.DefaultCountryCode)
	log := s.Log.WithPhone(inbound.From).WithMessageID(inbound.ID)

	if s.Dedup.IsHandled(ctx, inbound.ID) {
		log.Info("duplicate delivery skipped")
		return TurnResult{OK: true, Note: NoteDuplicate, Duplicate: true}
	}

	unlock, err := s.Locker.Lock(ctx, inbound.From)
	if err != nil {
		log.WithError(err).Warn("turn lock unavailable, relying on version check")
	} else {
		defer unlock()
		if s.Dedup.IsHandled(ctx, inbound.ID) {
			return TurnResult{OK: true, Note: NoteDuplicate, Duplicate: true}
		}
	}

	utils.BestEffort(ctx, log, "record inbound message", func(ctx context.Context) error {
		_, err := s.Messages.RecordInbound(ctx, &inbound)
		return err
	})
	s.Dedup.MarkHandled(ctx, inbound.From, inbound.ID)

	if !inbound.Timestamp.IsZero() && s.now().Sub(inbound.Timestamp) > s.cfg.FreeWindow() {
		log.Info("inbound outside free message window, flagging for follow-up")
		s.flag(ctx, log, &inbound, MessageFlags{NeedsFollowUp: true})
		return TurnResult{OK: true, Note: NoteOutsideWindow}
	}

	snap, err := s.Store.GetState(ctx, inbound.From)
	if err != nil {
		log.WithError(err).Error("failed to load conversation state")
		snap = &StateSnapshot{State: models.StateNone, Metadata: datatypes.JSONMap{}}
	}

	input := strings.TrimSpace(inbound.Text)
	t := &turn{
		ctx:   ctx,
		phone: inbound.From,
		msg:   &inbound,
		input: input,
		lower: strings.ToLower(input),
		snap:  snap,
		log:   log,
	}
	t.stay()

	s.route(t)
	return s.finish(t)
}

func (s *ChatbotService) route(t *turn) {
	if s.globalCommand(t) {
		return
	}
	if query, ok := flowSearchQuery(t.msg.FlowReply); ok {
		s.runSearch(t, query)
		return
	}

	state := t.snap.State
	if state.IsInProgress() && s.cfg.DraftTTL > 0 && !t.snap.UpdatedAt.IsZero() &&
		s.now().Sub(t.snap.UpdatedAt) > s.cfg.DraftTTL {
		t.log.Info("in-progress conversation expired", "state", string(state))
		s.sendText(t, msgSessionExpired)
		s.showMenu(t)
		return
	}

	switch {
	case state == models.StateNone:
		s.showMenu(t)
	case state == models.StateAwaitingMenuChoice:
		if !s.menuChoice(t) {
			s.showMenu(t)
		}
	case state.IsListingStep():
		s.listingStep(t)
	case state == models.StateSearchWaitAreaBudget:
		s.runSearch(t, utils.ParseAreaBudget(t.input))
	case state == models.StateSearchResults, state == models.StateAwaitingListSelection:
		s.selection(t)
	case state.IsTerminal():
		if !s.menuChoice(t) {
			s.showMenu(t)
		}
	default:
		t.log.Warn("conversation in unknown state, restarting", "state", string(state))
		s.showMenu(t)
	}
}

// globalCommand handles input that means the same thing across states.
// Listing steps only give up their input to the escape words; list selection
// also keeps greetings and numbers for itself.
func (s *ChatbotService) globalCommand(t *turn) bool {
	state := t.snap.State
	switch {
	case escapeKeywords[t.lower]:
		s.showMenu(t)
	case state.IsListingStep():
		return false
	case menuKeywords[t.lower] && state != models.StateAwaitingListSelection:
		s.showMenu(t)
	case strings.HasPrefix(t.lower, "view_"):
		s.revealByRef(t, t.input[len("view_"):])
	default:
		if m := contactCommand.FindStringSubmatch(t.input); m != nil {
			s.requestContact(t, m[1])
			return true
		}
		if m := paidCommand.FindStringSubmatch(t.input); m != nil {
			s.confirmPayment(t, m[1])
			return true
		}
		return false
	}
	return true
}

func (s *ChatbotService) showMenu(t *turn) {
	s.sendButtons(t, msgMenu, menuButtons)
	t.moveTo(models.StateAwaitingMenuChoice, nil)
}

// menuChoice dispatches a main-menu selection, reporting whether the input was one
func (s *ChatbotService) menuChoice(t *turn) bool {
	switch {
	case t.input == "1" || t.lower == "menu_list" || strings.Contains(t.lower, "list"):
		s.sendText(t, msgAskTitle)
		t.moveTo(models.StateListingWaitTitle, datatypes.JSONMap{models.MetaDraft: models.ListingDraft{}.AsMap()})
	case t.input == "2" || t.lower == "menu_search" || strings.Contains(t.lower, "search"):
		s.sendText(t, msgAskAreaBudget)
		if s.flowID != "" && s.flowSearch {
			s.sendFlow(t, FlowStart{
				FlowID:    s.flowID,
				FlowToken: t.phone + ":" + uuid.NewString(),
				Screen:    FlowScreenSearch,
				Header:    "Find a rental",
				Body:      "Prefer a form? Pick an area and budget here.",
				CTA:       "Search",
			})
		}
		t.moveTo(models.StateSearchWaitAreaBudget, nil)
	case t.input == "3" || t.lower == "menu_purchases" || strings.Contains(t.lower, "purchase"):
		s.showPurchases(t)
	default:
		return false
	}
	return true
}

func (s *ChatbotService) listingStep(t *turn) {
	draft := models.DraftFromMetadata(t.snap.Metadata)
	state := t.snap.State

	if t.input == "" {
		s.sendText(t, listingPrompts[state])
		t.stay()
		return
	}

	var next models.ConversationState
	var field string
	switch state {
	case models.StateListingWaitTitle:
		draft.Title, field = t.input, "Title"
		next = models.StateListingWaitSuburb
	case models.StateListingWaitSuburb:
		draft.Suburb, field = t.input, "Suburb"
		next = models.StateListingWaitType
	case models.StateListingWaitType:
		draft.PropertyType, field = t.input, "PropertyType"
		next = models.StateListingWaitPrice
	case models.StateListingWaitPrice:
		draft.PricePerMonth, field = utils.ParseAmount(t.input), "PricePerMonth"
		next = models.StateListingWaitBeds
	case models.StateListingWaitBeds:
		draft.Bedrooms, field = utils.ParseCount(t.input), "Bedrooms"
		next = models.StateListingWaitDesc
	case models.StateListingWaitDesc:
		s.createListing(t, draft)
		return
	default:
		s.showMenu(t)
		return
	}

	if err := s.Listings.ValidateField(draftListing(draft), field); err != nil {
		t.log.WithError(err).Info("listing answer rejected", "state", string(state))
		s.sendText(t, listingRejectedText(state))
		t.stay()
		return
	}

	s.sendText(t, listingPrompts[next])
	t.moveTo(next, datatypes.JSONMap{models.MetaDraft: draft.AsMap()})
}

func draftListing(draft models.ListingDraft) *models.Listing {
	return &models.Listing{
		Title:         draft.Title,
		Suburb:        draft.Suburb,
		PropertyType:  draft.PropertyType,
		PricePerMonth: draft.PricePerMonth,
		Bedrooms:      draft.Bedrooms,
	}
}

func (s *ChatbotService) createListing(t *turn, draft models.ListingDraft) {
	description := t.input
	if t.lower == "skip" {
		description = ""
	}

	listing := draftListing(draft)
	listing.Description = description
	listing.ListerPhoneNumber = t.phone
	listing.ListerName = t.msg.ContactName
	listing.ContactName = t.msg.ContactName
	listing.ContactPhone = t.phone
	listing.ContactWhatsApp = t.phone
	listing.Status = models.ListingStatusPublished
	if err := s.Listings.Create(t.ctx, listing); err != nil {
		t.log.WithError(err).Error("failed to create listing from chat")
		s.sendText(t, msgListingFailed)
		t.moveTo(models.StateListingWaitDesc, datatypes.JSONMap{models.MetaDraft: draft.AsMap()})
		return
	}

	t.log.Info("listing created from chat", "listing_id", listing.ID, "short_id", listing.ShortID)
	s.sendText(t, listingCreatedText(listing))
	t.moveTo(models.StateListingCreated, datatypes.JSONMap{models.MetaListingID: strconv.FormatUint(uint64(listing.ID), 10)})
}

func (s *ChatbotService) runSearch(t *turn, query utils.SearchQuery) {
	page, err := s.Listings.SearchPublished(t.ctx, ListingFilters{
		Suburb:   query.Area,
		MaxPrice: query.Budget,
		Limit:    s.cfg.SearchResultLimit,
	})
	if err != nil {
		t.log.WithError(err).Error("listing search failed")
		s.sendText(t, msgSearchFailed)
		t.stay()
		return
	}

	if len(page.Listings) == 0 {
		s.sendText(t, noResultsText(query))
		t.moveTo(models.StateSearchWaitAreaBudget, nil)
		return
	}

	ids := make([]string, 0, len(page.Listings))
	buttons := make([]Button, 0, maxButtons)
	for i, l := range page.Listings {
		id := strconv.FormatUint(uint64(l.ID), 10)
		ids = append(ids, id)
		if i < maxButtons {
			buttons = append(buttons, Button{ID: "view_" + id, Title: strconv.Itoa(i+1) + ". " + l.Title})
		}
	}

	s.sendText(t, searchSummaryText(query, page))
	s.sendButtons(t, msgTapToView, buttons)
	t.moveTo(models.StateSearchResults, datatypes.JSONMap{
		models.MetaListingIDs: ids,
		"query":               map[string]interface{}{"area": query.Area, "budget": query.Budget},
	})
}

func (s *ChatbotService) selection(t *turn) {
	ids := models.MetaStrings(t.snap.Metadata, models.MetaListingIDs)

	n, err := strconv.Atoi(t.input)
	if err != nil {
		if t.snap.State == models.StateSearchResults {
			if !s.menuChoice(t) {
				s.showMenu(t)
			}
			return
		}
		s.sendText(t, invalidSelectionText(len(ids)))
		t.stay()
		return
	}

	if n < 1 || n > len(ids) {
		s.sendText(t, invalidSelectionText(len(ids)))
		t.moveTo(models.StateAwaitingListSelection, cloneMeta(t.snap.Metadata))
		return
	}
	s.revealByRef(t, ids[n-1])
}

func (s *ChatbotService) revealByRef(t *turn, ref string) {
	listing, err := s.Listings.GetByID(t.ctx, ref)
	if err != nil {
		if !errors.Is(err, ErrListingNotFound) {
			t.log.WithError(err).Error("failed to load listing for reveal")
		}
		s.sendText(t, msgListingGone)
		t.stay()
		return
	}
	s.reveal(t, listing)
}

func (s *ChatbotService) reveal(t *turn, listing *models.Listing) {
	photo := ""
	if keys := listing.ImageKeys(); len(keys) > 0 {
		url, err := s.Images.GetImageURL(t.ctx, keys[0])
		if err != nil {
			t.log.WithError(err).Warn("failed to sign listing photo")
		}
		photo = url
	}

	s.sendText(t, contactDetailsText(listing, photo))
	t.moveTo(models.StateContactRevealed, datatypes.JSONMap{
		models.MetaListingID: strconv.FormatUint(uint64(listing.ID), 10),
	})
}

func (s *ChatbotService) requestContact(t *turn, ref string) {
	listing, err := s.Listings.GetByReference(t.ctx, ref)
	if err != nil {
		s.sendText(t, msgListingGone)
		t.stay()
		return
	}

	payment, err := s.Payments.CreatePending(t.ctx, t.phone, listing.ID)
	if err != nil {
		t.log.WithError(err).Error("failed to open contact payment")
		s.sendText(t, msgPaymentFailed)
		t.stay()
		return
	}

	s.sendText(t, paymentInstructionsText(listing, payment))
	t.moveTo(models.StateContactPaymentPending, datatypes.JSONMap{
		models.MetaPaymentID: payment.ID,
		models.MetaListingID: strconv.FormatUint(uint64(listing.ID), 10),
	})
}

func (s *ChatbotService) confirmPayment(t *turn, ref string) {
	payment, err := s.Payments.FindPending(t.ctx, t.phone, ref)
	if err != nil {
		if !errors.Is(err, ErrPaymentNotFound) {
			t.log.WithError(err).Error("failed to look up payment")
		}
		s.sendText(t, paymentNotFoundText(ref))
		t.stay()
		return
	}

	if err := s.Payments.MarkPaid(t.ctx, payment); err != nil {
		t.log.WithError(err).Error("failed to mark payment paid")
		s.sendText(t, msgPaymentFailed)
		t.stay()
		return
	}
	t.log.Info("contact payment confirmed", "payment_id", payment.ID)
	s.revealByRef(t, strconv.FormatUint(uint64(payment.ListingID), 10))
}

func (s *ChatbotService) showPurchases(t *turn) {
	payments, err := s.Payments.ListPaid(t.ctx, t.phone)
	if err != nil {
		t.log.WithError(err).Error("failed to list purchases")
		payments = nil
	}
	s.sendText(t, purchasesText(payments))
	t.moveTo(models.StateShowPurchases, nil)
}

// finish writes the turn's state transition and reports the outcome
func (s *ChatbotService) finish(t *turn) TurnResult {
	if t.windowClosed {
		s.flag(t.ctx, t.log, t.msg, MessageFlags{TemplateRequired: true})
	}

	if t.snap.State.Known() && !models.AllowedTransition(t.snap.State, t.next) {
		t.log.Error("refusing invalid state transition", "from", string(t.snap.State), "to", string(t.next))
		return TurnResult{OK: false, Note: NoteInvalidNextState, State: t.snap.State}
	}

	_, err := s.Store.SetState(t.ctx, t.phone, t.snap.Version, StateWrite{
		State:      t.next,
		Metadata:   t.meta,
		Body:       strings.Join(t.replies, "\n\n"),
		ExternalID: t.firstID,
	})
	switch {
	case errors.Is(err, ErrStaleState):
		t.log.Warn("conversation changed during turn, state not written", "state", string(t.next))
		return TurnResult{OK: true, Note: NoteStaleState, State: t.next}
	case err != nil:
		t.log.WithError(err).Error("failed to write conversation state")
		return TurnResult{OK: false, Note: NoteStateError, State: t.snap.State}
	}

	t.log.Debug("turn complete", "from", string(t.snap.State), "to", string(t.next))
	return TurnResult{OK: true, Note: NoteHandled, State: t.next}
}

// HandleStatuses stores delivery receipts, returning how many matched an outbound message
func (s *ChatbotService) HandleStatuses(ctx context.Context, statuses []DeliveryStatus) int {
	matched := 0
	for _, status := range statuses {
		var n int64
		utils.BestEffort(ctx, s.Log, "update delivery status", func(ctx context.Context) error {
			var err error
			n, err = s.Messages.UpdateDeliveryStatus(ctx, status)
			return err
		})
		if n > 0 {
			matched++
		}
		if status.WindowClosed {
			s.Log.WithPhone(status.RecipientID).Warn("delivery failed outside the 24-hour window, template required",
				"message_id", status.MessageID)
		}
	}
	return matched
}

// RecordFlowSearch makes Flow search results the phone's current selection list
func (s *ChatbotService) RecordFlowSearch(ctx context.Context, phone string, listings []models.Listing) error {
	phone = utils.CanonicalPhone(phone, s.cfg.DefaultCountryCode)
	if phone == "" {
		return nil
	}
	unlock, err := s.Locker.Lock(ctx, phone)
	if err == nil {
		defer unlock()
	}

	snap, err := s.Store.GetState(ctx, phone)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, strconv.FormatUint(uint64(l.ID), 10))
	}
	_, err = s.Store.SetState(ctx, phone, snap.Version, StateWrite{
		State:    models.StateSearchResults,
		Metadata: datatypes.JSONMap{models.MetaListingIDs: ids, "source": "flow"},
		Body:     "Flow search results",
	})
	return err
}

func (s *ChatbotService) flag(ctx context.Context, log *logger.Logger, msg *InboundMessage, flags MessageFlags) {
	if msg.ID == "" {
		return
	}
	utils.BestEffort(ctx, log, "flag inbound message", func(ctx context.Context) error {
		return s.Messages.Flag(ctx, msg.From, msg.ID, flags)
	})
}

func (s *ChatbotService) sendText(t *turn, body string) {
	result, err := s.Sender.SendText(t.ctx, t.phone, body)
	s.recordSend(t, body, result, err)
}

func (s *ChatbotService) sendButtons(t *turn, body string, buttons []Button) {
	result, err := s.Sender.SendInteractiveButtons(t.ctx, t.phone, body, buttons)
	s.recordSend(t, body, result, err)
}

func (s *ChatbotService) sendFlow(t *turn, flow FlowStart) {
	result, err := s.Sender.SendFlowStart(t.ctx, t.phone, flow)
	s.recordSend(t, flow.Body, result, err)
}

func (s *ChatbotService) recordSend(t *turn, body string, result *SendResult, err error) {
	t.replies = append(t.replies, body)
	if result != nil {
		if result.WindowClosed {
			t.windowClosed = true
		}
		if t.firstID == "" && result.MessageID != "" {
			t.firstID = result.MessageID
		}
	}
	if err != nil {
		if IsWindowClosed(err) {
			t.windowClosed = true
		}
		t.log.WithError(err).Warn("outbound send failed")
	}
}

// flowSearchQuery reads area and budget from a completed Flow form
func flowSearchQuery(reply map[string]interface{}) (utils.SearchQuery, bool) {
	if len(reply) == 0 {
		return utils.SearchQuery{}, false
	}
	area := firstNonEmpty(flowString(reply, "area"), flowString(reply, "suburb"))
	budget := firstNonEmpty(flowString(reply, "budget"), flowString(reply, "max_price"))
	if area == "" && budget == "" {
		return utils.SearchQuery{}, false
	}
	return utils.SearchQuery{Area: area, Budget: utils.ParseAmount(budget)}, true
}

func flowString(data map[string]interface{}, key string) string {
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}
