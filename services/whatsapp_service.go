package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Roland735/cribmatch-website-sub000/config"
	"github.com/Roland735/cribmatch-website-sub000/logger"
	"github.com/Roland735/cribmatch-website-sub000/models"
	"github.com/Roland735/cribmatch-website-sub000/utils"
	"golang.org/x/time/rate"
)

// Graph API limits for interactive messages
const (
	maxButtons          = 3
	maxButtonTitle      = 20
	maxListRows         = 10
	maxListRowTitle     = 24
	maxListRowDesc      = 72
	maxListButtonLabel  = 20
	maxInteractiveBody  = 1024
	defaultSendAttempts = 3
)

// ErrMissingCredentials means the token or phone number id is not configured
var ErrMissingCredentials = errors.New("whatsapp credentials are not configured")

// WhatsAppService sends outbound WhatsApp messages
type WhatsAppService interface {
	SendText(ctx context.Context, to, body string) (*SendResult, error)
	SendInteractiveButtons(ctx context.Context, to, body string, buttons []Button) (*SendResult, error)
	SendInteractiveList(ctx context.Context, to string, list ListMessage) (*SendResult, error)
	SendFlowStart(ctx context.Context, to string, flow FlowStart) (*SendResult, error)
}

// SendResult describes what happened to one send
type SendResult struct {
	MessageID    string `json:"message_id,omitempty"`
	StatusCode   int    `json:"status_code,omitempty"`
	Error        string `json:"error,omitempty"`
	Fallback     bool   `json:"fallback,omitempty"`
	WindowClosed bool   `json:"window_closed,omitempty"`
}

// Button is a reply button on an interactive message
type Button struct {
	ID    string
	Title string
}

// ListMessage is an interactive list with sections of rows
type ListMessage struct {
	Header      string
	Body        string
	Footer      string
	ButtonLabel string
	Sections    []ListSection
}

// ListSection groups rows under a title
type ListSection struct {
	Title string
	Rows  []ListRow
}

// ListRow is one selectable row
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// FlowStart launches a WhatsApp Flow form
type FlowStart struct {
	FlowID    string
	FlowToken string
	Screen    string
	Header    string
	Body      string
	Footer    string
	CTA       string
	Data      map[string]interface{}
}

// GraphAPIError is an error response from the Graph API
type GraphAPIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	Type       string `json:"type"`
	Message    string `json:"message"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *GraphAPIError) Error() string {
	return fmt.Sprintf("graph api error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

// WindowClosed reports whether the provider refused a free-form message outside the 24-hour window
func (e *GraphAPIError) WindowClosed() bool {
	return e.Code == models.ReEngagementErrorCode
}

// IsWindowClosed reports whether err is a 24-hour window rejection
func IsWindowClosed(err error) bool {
	var apiErr *GraphAPIError
	return errors.As(err, &apiErr) && apiErr.WindowClosed()
}

// GraphWhatsAppService sends messages through the WhatsApp Cloud API
type GraphWhatsAppService struct {
	baseURL       string
	version       string
	phoneNumberID string
	token         string
	client        *http.Client
	limiter       *rate.Limiter
	attempts      int
	retryDelay    time.Duration
	log           *logger.Logger
}

// NewWhatsAppService creates a Cloud API sender from configuration
func NewWhatsAppService(cfg config.WhatsAppConfig, log *logger.Logger) *GraphWhatsAppService {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Limit(cfg.SendRate)
	if cfg.SendRate <= 0 {
		limit = rate.Inf
	}
	burst := int(cfg.SendRate)
	if burst < 1 {
		burst = 1
	}
	if log == nil {
		log = logger.Discard()
	}

	return &GraphWhatsAppService{
		baseURL:       strings.TrimRight(cfg.APIBaseURL, "/"),
		version:       cfg.APIVersion,
		phoneNumberID: cfg.PhoneNumberID,
		token:         cfg.APIToken,
		client:        &http.Client{Timeout: timeout},
		limiter:       rate.NewLimiter(limit, burst),
		attempts:      defaultSendAttempts,
		retryDelay:    500 * time.Millisecond,
		log:           log.WithComponent("whatsapp"),
	}
}

// SendText sends a free-form text message
func (s *GraphWhatsAppService) SendText(ctx context.Context, to, body string) (*SendResult, error) {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text": map[string]interface{}{
			"preview_url": true,
			"body":        body,
		},
	}
	return s.post(ctx, payload)
}

// SendInteractiveButtons sends up to three reply buttons, falling back to numbered text
func (s *GraphWhatsAppService) SendInteractiveButtons(ctx context.Context, to, body string, buttons []Button) (*SendResult, error) {
	if len(buttons) > maxButtons {
		buttons = buttons[:maxButtons]
	}
	replies := make([]map[string]interface{}, 0, len(buttons))
	for _, b := range buttons {
		replies = append(replies, map[string]interface{}{
			"type":  "reply",
			"reply": map[string]string{"id": b.ID, "title": truncate(b.Title, maxButtonTitle)},
		})
	}
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type":   "button",
			"body":   map[string]string{"text": truncate(body, maxInteractiveBody)},
			"action": map[string]interface{}{"buttons": replies},
		},
	}

	options := make([]string, 0, len(buttons))
	for _, b := range buttons {
		options = append(options, b.Title)
	}
	return s.postWithFallback(ctx, to, payload, NumberedFallback(body, options))
}

// SendInteractiveList sends a list message, falling back to numbered text
func (s *GraphWhatsAppService) SendInteractiveList(ctx context.Context, to string, list ListMessage) (*SendResult, error) {
	sections := make([]map[string]interface{}, 0, len(list.Sections))
	var options []string
	total := 0
	for _, section := range list.Sections {
		rows := make([]map[string]string, 0, len(section.Rows))
		for _, row := range section.Rows {
			if total == maxListRows {
				break
			}
			total++
			r := map[string]string{"id": row.ID, "title": truncate(row.Title, maxListRowTitle)}
			if row.Description != "" {
				r["description"] = truncate(row.Description, maxListRowDesc)
			}
			rows = append(rows, r)
			options = append(options, row.Title)
		}
		if len(rows) == 0 {
			continue
		}
		sec := map[string]interface{}{"rows": rows}
		if section.Title != "" {
			sec["title"] = truncate(section.Title, maxListRowTitle)
		}
		sections = append(sections, sec)
	}

	label := list.ButtonLabel
	if label == "" {
		label = "Choose"
	}
	interactive := map[string]interface{}{
		"type": "list",
		"body": map[string]string{"text": truncate(list.Body, maxInteractiveBody)},
		"action": map[string]interface{}{
			"button":   truncate(label, maxListButtonLabel),
			"sections": sections,
		},
	}
	if list.Header != "" {
		interactive["header"] = map[string]string{"type": "text", "text": list.Header}
	}
	if list.Footer != "" {
		interactive["footer"] = map[string]string{"text": list.Footer}
	}
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "interactive",
		"interactive":       interactive,
	}
	return s.postWithFallback(ctx, to, payload, NumberedFallback(list.Body, options))
}

// SendFlowStart launches a Flow, merging the default dropdown options with flow.Data
func (s *GraphWhatsAppService) SendFlowStart(ctx context.Context, to string, flow FlowStart) (*SendResult, error) {
	if flow.FlowID == "" {
		return &SendResult{Error: "missing-flow-id"}, errors.New("flow id is required")
	}

	data := DefaultFlowOptions()
	for k, v := range flow.Data {
		data[k] = v
	}
	cta := flow.CTA
	if cta == "" {
		cta = "Search"
	}
	screen := flow.Screen
	if screen == "" {
		screen = FlowScreenSearch
	}

	interactive := map[string]interface{}{
		"type": "flow",
		"body": map[string]string{"text": truncate(flow.Body, maxInteractiveBody)},
		"action": map[string]interface{}{
			"name": "flow",
			"parameters": map[string]interface{}{
				"flow_message_version": "3",
				"flow_token":           flow.FlowToken,
				"flow_id":              flow.FlowID,
				"flow_cta":             truncate(cta, maxButtonTitle),
				"flow_action":          "navigate",
				"flow_action_payload": map[string]interface{}{
					"screen": screen,
					"data":   data,
				},
			},
		},
	}
	if flow.Header != "" {
		interactive["header"] = map[string]string{"type": "text", "text": flow.Header}
	}
	if flow.Footer != "" {
		interactive["footer"] = map[string]string{"text": flow.Footer}
	}

	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "interactive",
		"interactive":       interactive,
	}
	return s.post(ctx, payload)
}

// postWithFallback sends an interactive payload and retries as plain text when the provider rejects it
func (s *GraphWhatsAppService) postWithFallback(ctx context.Context, to string, payload interface{}, fallback string) (*SendResult, error) {
	result, err := s.post(ctx, payload)
	if err == nil || errors.Is(err, ErrMissingCredentials) || result.WindowClosed {
		return result, err
	}

	s.log.WithError(err).Warn("interactive send rejected, falling back to text", "to", to)
	textResult, textErr := s.SendText(ctx, to, fallback)
	textResult.Fallback = true
	return textResult, textErr
}

func (s *GraphWhatsAppService) post(ctx context.Context, payload interface{}) (*SendResult, error) {
	if s.token == "" || s.phoneNumberID == "" {
		return &SendResult{Error: "missing-credentials"}, ErrMissingCredentials
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &SendResult{Error: "encode-failed"}, fmt.Errorf("failed to encode message: %w", err)
	}
	url := fmt.Sprintf("%s/%s/%s/messages", s.baseURL, s.version, s.phoneNumberID)

	result := &SendResult{}
	err = utils.Retry(ctx, s.attempts, s.retryDelay, func(attempt int) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return utils.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return utils.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+s.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			s.log.WithError(err).Warn("graph api request failed", "attempt", attempt+1)
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		result.StatusCode = resp.StatusCode

		if resp.StatusCode >= 400 {
			apiErr := parseGraphError(resp.StatusCode, respBody)
			if resp.StatusCode >= 500 {
				return apiErr
			}
			return utils.Permanent(apiErr)
		}

		var ok struct {
			Messages []struct {
				ID string `json:"id"`
			} `json:"messages"`
		}
		if err := json.Unmarshal(respBody, &ok); err == nil && len(ok.Messages) > 0 {
			result.MessageID = ok.Messages[0].ID
		}
		return nil
	})
	if err != nil {
		result.Error = err.Error()
		result.WindowClosed = IsWindowClosed(err)
		return result, err
	}
	return result, nil
}

func parseGraphError(status int, body []byte) *GraphAPIError {
	var envelope struct {
		Error GraphAPIError `json:"error"`
	}
	apiErr := &GraphAPIError{StatusCode: status, Message: http.StatusText(status)}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr = &envelope.Error
		apiErr.StatusCode = status
	}
	return apiErr
}

// NumberedFallback renders options as a numbered plain-text menu
func NumberedFallback(body string, options []string) string {
	var sb strings.Builder
	sb.WriteString(body)
	if len(options) > 0 {
		sb.WriteString("\n")
	}
	for i, option := range options {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, option)
	}
	if len(options) > 0 {
		sb.WriteString("\n\nReply with a number or keyword.")
	}
	return sb.String()
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}
