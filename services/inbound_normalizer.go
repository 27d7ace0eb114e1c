package services

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/Roland735/cribmatch-website-sub000/models"
	"github.com/Roland735/cribmatch-website-sub000/utils"
)

// PayloadKind tags the shape a webhook body was recognised as
type PayloadKind string

const (
	PayloadUnknown          PayloadKind = "unknown"
	PayloadFlowExchange     PayloadKind = "flow_exchange"
	PayloadLegacyMessage    PayloadKind = "legacy_message"
	PayloadGenericMessage   PayloadKind = "generic_message"
	PayloadCloudAPIMessage  PayloadKind = "cloud_api_message"
	PayloadStatusUpdate     PayloadKind = "status_update"
	PayloadInteractiveReply PayloadKind = "interactive_reply"
)

// InboundMessage is the canonical form of a user message, whatever shape it arrived in
type InboundMessage struct {
	ID          string
	From        string
	Text        string
	Kind        string
	Timestamp   time.Time
	ContactName string
	FlowReply   map[string]interface{}
	Variant     PayloadKind
	Raw         json.RawMessage
}

// FlowRequest is a Flow data exchange, either still encrypted or sent in plaintext
type FlowRequest struct {
	Encrypted bool
	Envelope  FlowEnvelope
	Plain     *FlowAction
}

// FlowAction is the decrypted body of a Flow data exchange
type FlowAction struct {
	Version   string                 `json:"version"`
	Action    string                 `json:"action"`
	Screen    string                 `json:"screen,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	FlowToken string                 `json:"flow_token,omitempty"`
}

// DeliveryStatus is a normalized outbound delivery receipt
type DeliveryStatus struct {
	MessageID    string
	Status       string
	RecipientID  string
	WindowClosed bool
}

// ParsedPayload is the result of normalizing one webhook body.
// Exactly one of Message, Flow or Statuses is set unless Kind is PayloadUnknown.
type ParsedPayload struct {
	Kind     PayloadKind
	Message  *InboundMessage
	Flow     *FlowRequest
	Statuses []DeliveryStatus
}

type payloadParser func(body []byte) (ParsedPayload, bool)

// parsers are tried in order and the first match wins
var parsers = []payloadParser{
	parseFlowExchange,
	parseLegacyMessage,
	parseGenericMessage,
	parseCloudAPI,
	parseInteractiveReply,
}

// NormalizePayload recognises a webhook body and extracts its canonical content.
// Bodies that match no known shape, or carry neither a message id nor a sender, are PayloadUnknown.
func NormalizePayload(body []byte) ParsedPayload {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ParsedPayload{Kind: PayloadUnknown}
	}
	for _, parse := range parsers {
		if parsed, ok := parse(trimmed); ok {
			if parsed.Message != nil {
				parsed.Message.Raw = json.RawMessage(trimmed)
				if parsed.Message.ID == "" && parsed.Message.From == "" {
					return ParsedPayload{Kind: PayloadUnknown}
				}
			}
			return parsed
		}
	}
	return ParsedPayload{Kind: PayloadUnknown}
}

func parseFlowExchange(body []byte) (ParsedPayload, bool) {
	var shape struct {
		FlowEnvelope
		InitializationVector string `json:"initialization_vector"`
		Action               string `json:"action"`
		Version              string `json:"version"`
	}
	if err := json.Unmarshal(body, &shape); err != nil {
		return ParsedPayload{}, false
	}
	if shape.InitialVector == "" {
		shape.InitialVector = shape.InitializationVector
	}

	if shape.EncryptedFlowData != "" && shape.EncryptedAESKey != "" {
		return ParsedPayload{
			Kind: PayloadFlowExchange,
			Flow: &FlowRequest{Encrypted: true, Envelope: shape.FlowEnvelope},
		}, true
	}

	if shape.Action != "" && shape.Version != "" {
		var action FlowAction
		if err := json.Unmarshal(body, &action); err != nil {
			return ParsedPayload{}, false
		}
		return ParsedPayload{
			Kind: PayloadFlowExchange,
			Flow: &FlowRequest{Plain: &action},
		}, true
	}
	return ParsedPayload{}, false
}

func parseLegacyMessage(body []byte) (ParsedPayload, bool) {
	var legacy struct {
		UserMessage *string         `json:"user_message"`
		From        string          `json:"from"`
		Phone       string          `json:"phone"`
		ID          string          `json:"id"`
		MessageID   string          `json:"message_id"`
		Timestamp   json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &legacy); err != nil || legacy.UserMessage == nil {
		return ParsedPayload{}, false
	}

	msg := &InboundMessage{
		ID:        firstNonEmpty(legacy.MessageID, legacy.ID),
		From:      utils.DigitsOnly(firstNonEmpty(legacy.From, legacy.Phone)),
		Text:      strings.TrimSpace(*legacy.UserMessage),
		Kind:      models.KindText,
		Timestamp: parseTimestamp(legacy.Timestamp),
		Variant:   PayloadLegacyMessage,
	}
	return ParsedPayload{Kind: PayloadLegacyMessage, Message: msg}, true
}

func parseGenericMessage(body []byte) (ParsedPayload, bool) {
	var wrapper struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil || len(wrapper.Message) == 0 || wrapper.Message[0] != '{' {
		return ParsedPayload{}, false
	}

	var inner struct {
		ID          string                   `json:"id"`
		From        string                   `json:"from"`
		Phone       string                   `json:"phone"`
		Text        json.RawMessage          `json:"text"`
		Body        string                   `json:"body"`
		Timestamp   json.RawMessage          `json:"timestamp"`
		Interactive *models.InteractiveReply `json:"interactive"`
	}
	if err := json.Unmarshal(wrapper.Message, &inner); err != nil {
		return ParsedPayload{}, false
	}

	msg := &InboundMessage{
		ID:        inner.ID,
		From:      utils.DigitsOnly(firstNonEmpty(inner.From, inner.Phone)),
		Kind:      models.KindText,
		Timestamp: parseTimestamp(inner.Timestamp),
		Variant:   PayloadGenericMessage,
	}
	if inner.Interactive != nil {
		msg.Kind = models.KindInteractive
		msg.Text, msg.FlowReply = interactiveText(inner.Interactive)
	} else {
		msg.Text = firstNonEmpty(textValue(inner.Text), inner.Body)
	}
	msg.Text = strings.TrimSpace(msg.Text)
	return ParsedPayload{Kind: PayloadGenericMessage, Message: msg}, true
}

func parseCloudAPI(body []byte) (ParsedPayload, bool) {
	var payload models.CloudWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Entry) == 0 {
		return ParsedPayload{}, false
	}
	entry := payload.Entry[0]
	if len(entry.Changes) == 0 {
		return ParsedPayload{}, false
	}
	value := entry.Changes[0].Value

	if len(value.Messages) > 0 {
		m := value.Messages[0]
		msg := &InboundMessage{
			ID:        m.ID,
			From:      utils.DigitsOnly(m.From),
			Timestamp: parseTimestamp(json.RawMessage(strconv.Quote(m.Timestamp))),
			Variant:   PayloadCloudAPIMessage,
		}
		for _, c := range value.Contacts {
			if c.WaID == m.From {
				msg.ContactName = c.Profile.Name
			}
		}
		switch {
		case m.Text != nil:
			msg.Kind = models.KindText
			msg.Text = m.Text.Body
		case m.Interactive != nil:
			msg.Kind = models.KindInteractive
			msg.Text, msg.FlowReply = interactiveText(m.Interactive)
		case m.Button != nil:
			msg.Kind = models.KindInteractive
			msg.Text = firstNonEmpty(m.Button.Payload, m.Button.Text)
		default:
			msg.Kind = models.KindUnknown
		}
		msg.Text = strings.TrimSpace(msg.Text)
		return ParsedPayload{Kind: PayloadCloudAPIMessage, Message: msg}, true
	}

	if len(value.Statuses) > 0 {
		statuses := make([]DeliveryStatus, 0, len(value.Statuses))
		for _, s := range value.Statuses {
			status := DeliveryStatus{MessageID: s.ID, Status: s.Status, RecipientID: s.RecipientID}
			for _, e := range s.Errors {
				if e.Code == models.ReEngagementErrorCode {
					status.WindowClosed = true
				}
			}
			statuses = append(statuses, status)
		}
		return ParsedPayload{Kind: PayloadStatusUpdate, Statuses: statuses}, true
	}

	return ParsedPayload{}, false
}

func parseInteractiveReply(body []byte) (ParsedPayload, bool) {
	var reply struct {
		ID          string                   `json:"id"`
		From        string                   `json:"from"`
		Phone       string                   `json:"phone"`
		Timestamp   json.RawMessage          `json:"timestamp"`
		Interactive *models.InteractiveReply `json:"interactive"`
	}
	if err := json.Unmarshal(body, &reply); err != nil || reply.Interactive == nil {
		return ParsedPayload{}, false
	}

	msg := &InboundMessage{
		ID:        reply.ID,
		From:      utils.DigitsOnly(firstNonEmpty(reply.From, reply.Phone)),
		Kind:      models.KindInteractive,
		Timestamp: parseTimestamp(reply.Timestamp),
		Variant:   PayloadInteractiveReply,
	}
	msg.Text, msg.FlowReply = interactiveText(reply.Interactive)
	msg.Text = strings.TrimSpace(msg.Text)
	return ParsedPayload{Kind: PayloadInteractiveReply, Message: msg}, true
}

// interactiveText prefers the option id over its title so button ids drive routing
func interactiveText(reply *models.InteractiveReply) (string, map[string]interface{}) {
	switch {
	case reply.ButtonReply != nil:
		return firstNonEmpty(reply.ButtonReply.ID, reply.ButtonReply.Title), nil
	case reply.ListReply != nil:
		return firstNonEmpty(reply.ListReply.ID, reply.ListReply.Title), nil
	case reply.NfmReply != nil:
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(reply.NfmReply.ResponseJSON), &data); err != nil {
			return reply.NfmReply.Body, nil
		}
		return reply.NfmReply.Body, data
	}
	return "", nil
}

// textValue accepts "text": "hi" as well as "text": {"body": "hi"}
func textValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj models.TextContent
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Body
	}
	return ""
}

// parseTimestamp reads unix seconds given as a number or string, or RFC 3339.
// Missing or unreadable timestamps yield the zero time.
func parseTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}
	}
	value := strings.Trim(string(raw), `"`)
	if value == "" {
		return time.Time{}
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n)
		}
		return time.Unix(n, 0)
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
