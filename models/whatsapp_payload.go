package models

import "encoding/json"

// CloudWebhookPayload is the body the WhatsApp Cloud API posts for message and status events
type CloudWebhookPayload struct {
	Object string       `json:"object"`
	Entry  []CloudEntry `json:"entry"`
}

// CloudEntry is one business account entry of a webhook delivery
type CloudEntry struct {
	ID      string        `json:"id"`
	Changes []CloudChange `json:"changes"`
}

// CloudChange carries the notification contents
type CloudChange struct {
	Field string     `json:"field"`
	Value CloudValue `json:"value"`
}

// CloudValue holds the messages, contacts and statuses of a change
type CloudValue struct {
	MessagingProduct string          `json:"messaging_product"`
	Metadata         CloudMetadata   `json:"metadata"`
	Contacts         []CloudContact  `json:"contacts"`
	Messages         []CloudMessage  `json:"messages"`
	Statuses         []CloudStatus   `json:"statuses"`
	Errors           []CloudAPIError `json:"errors"`
}

// CloudMetadata identifies the receiving business number
type CloudMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// CloudContact is the WhatsApp user behind a message
type CloudContact struct {
	WaID    string         `json:"wa_id"`
	Profile ContactProfile `json:"profile"`
}

// ContactProfile holds the user's WhatsApp display name
type ContactProfile struct {
	Name string `json:"name"`
}

// CloudMessage is a single inbound message
type CloudMessage struct {
	ID          string            `json:"id"`
	From        string            `json:"from"`
	Timestamp   string            `json:"timestamp"`
	Type        string            `json:"type"`
	Text        *TextContent      `json:"text,omitempty"`
	Interactive *InteractiveReply `json:"interactive,omitempty"`
	Button      *QuickReplyButton `json:"button,omitempty"`
}

// TextContent is the body of a text message
type TextContent struct {
	Body string `json:"body"`
}

// InteractiveReply is a button, list or Flow completion reply
type InteractiveReply struct {
	Type        string       `json:"type"`
	ButtonReply *ReplyOption `json:"button_reply,omitempty"`
	ListReply   *ReplyOption `json:"list_reply,omitempty"`
	NfmReply    *NfmReply    `json:"nfm_reply,omitempty"`
}

// ReplyOption is the option a user tapped
type ReplyOption struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// NfmReply is sent when a user submits a Flow form in chat
type NfmReply struct {
	Name         string `json:"name"`
	Body         string `json:"body"`
	ResponseJSON string `json:"response_json"`
}

// QuickReplyButton is a template quick-reply tap
type QuickReplyButton struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// CloudStatus is a delivery receipt for an outbound message
type CloudStatus struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Timestamp   string          `json:"timestamp"`
	RecipientID string          `json:"recipient_id"`
	Errors      []CloudAPIError `json:"errors,omitempty"`
}

// CloudAPIError is an error object as the Graph API reports it
type CloudAPIError struct {
	Code      int             `json:"code"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	ErrorData json.RawMessage `json:"error_data,omitempty"`
}

// ReEngagementErrorCode is reported when a free-form message falls outside the 24-hour window
const ReEngagementErrorCode = 131047
