package services

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/Roland735/cribmatch-website-sub000/logger"
	"github.com/Roland735/cribmatch-website-sub000/models"
	"github.com/Roland735/cribmatch-website-sub000/utils"
)

// FlowSearchRecorder turns Flow search results into the phone's selection list
type FlowSearchRecorder interface {
	RecordFlowSearch(ctx context.Context, phone string, listings []models.Listing) error
}

// FlowService answers WhatsApp Flow data exchange requests for the search form
type FlowService struct {
	listings ListingService
	recorder FlowSearchRecorder
	limit    int
	log      *logger.Logger
}

// NewFlowService creates the Flow endpoint logic. recorder may be nil.
func NewFlowService(listings ListingService, recorder FlowSearchRecorder, limit int, log *logger.Logger) *FlowService {
	if limit <= 0 {
		limit = 3
	}
	if log == nil {
		log = logger.Discard()
	}
	return &FlowService{listings: listings, recorder: recorder, limit: limit, log: log.WithComponent("flow")}
}

// Handle answers one decrypted Flow request
func (s *FlowService) Handle(ctx context.Context, req *FlowAction) (map[string]interface{}, error) {
	switch strings.ToLower(req.Action) {
	case "ping":
		return map[string]interface{}{"data": map[string]interface{}{"status": "active"}}, nil
	case "init", "back":
		return screen(FlowScreenSearch, DefaultFlowOptions()), nil
	case "data_exchange":
		return s.search(ctx, req), nil
	}

	// error notifications from the client are acknowledged
	if _, ok := req.Data["error"]; ok {
		s.log.Warn("flow client reported an error", "screen", req.Screen, "error", req.Data["error"])
		return map[string]interface{}{"data": map[string]interface{}{"acknowledged": true}}, nil
	}
	return nil, newFlowError(http.StatusBadRequest, "UNKNOWN_ACTION", "unsupported flow action "+req.Action, nil)
}

func (s *FlowService) search(ctx context.Context, req *FlowAction) map[string]interface{} {
	area := firstNonEmpty(flowString(req.Data, "area"), flowString(req.Data, "suburb"))
	budget := utils.ParseAmount(firstNonEmpty(flowString(req.Data, "budget"), flowString(req.Data, "max_price")))

	if area == "" && budget == 0 {
		data := DefaultFlowOptions()
		data["error_message"] = "Pick an area or enter a budget to search."
		return screen(FlowScreenSearch, data)
	}

	page, err := s.listings.SearchPublished(ctx, ListingFilters{
		Suburb:       area,
		City:         flowString(req.Data, "city"),
		PropertyType: flowString(req.Data, "property_type"),
		MaxPrice:     budget,
		MinBedrooms:  utils.ParseCount(flowString(req.Data, "bedrooms")),
		Limit:        s.limit,
	})
	if err != nil {
		s.log.WithError(err).Error("flow search failed")
		data := DefaultFlowOptions()
		data["error_message"] = "Search is unavailable right now. Please try again shortly."
		return screen(FlowScreenSearch, data)
	}

	results := make([]map[string]interface{}, 0, len(page.Listings))
	for _, l := range page.Listings {
		results = append(results, map[string]interface{}{
			"id":          strconv.FormatUint(uint64(l.ID), 10),
			"title":       truncate(l.Title, maxListRowTitle),
			"description": truncate(l.Suburb+" · "+money(l.PricePerMonth)+"/month", maxListRowDesc),
		})
	}

	if phone := phoneFromFlowToken(req.FlowToken); phone != "" && s.recorder != nil && len(page.Listings) > 0 {
		utils.BestEffort(ctx, s.log, "record flow search", func(ctx context.Context) error {
			return s.recorder.RecordFlowSearch(ctx, phone, page.Listings)
		})
	}

	return screen(FlowScreenResults, map[string]interface{}{
		"listings":  results,
		"count":     page.Total,
		"area":      area,
		"has_items": len(results) > 0,
	})
}

func screen(name string, data map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"screen": name, "data": data}
}

// phoneFromFlowToken reads the phone from a "<phone>:<nonce>" token
func phoneFromFlowToken(token string) string {
	phone, _, ok := strings.Cut(token, ":")
	if !ok {
		return ""
	}
	return utils.DigitsOnly(phone)
}
