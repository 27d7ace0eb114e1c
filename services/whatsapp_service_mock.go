package services

import (
	"context"
	"fmt"
	"sync"
)

// SentMessage is one send captured by MockWhatsAppService
type SentMessage struct {
	Type    string
	To      string
	Body    string
	Buttons []Button
	List    *ListMessage
	Flow    *FlowStart
}

// MockWhatsAppService is a mock implementation of WhatsAppService for testing
type MockWhatsAppService struct {
	sent []SentMessage
	mu   sync.RWMutex

	// Err, when set, is returned by every send
	Err error
	// WindowClosed makes every send report a closed 24-hour window
	WindowClosed bool
}

// NewMockWhatsAppService creates a new mock WhatsApp sender
func NewMockWhatsAppService() *MockWhatsAppService {
	return &MockWhatsAppService{}
}

func (m *MockWhatsAppService) record(msg SentMessage) (*SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil || m.WindowClosed {
		result := &SendResult{WindowClosed: m.WindowClosed, Error: "mock-failure"}
		err := m.Err
		if err == nil {
			err = &GraphAPIError{StatusCode: 400, Code: 131047, Message: "Re-engagement message"}
		}
		return result, err
	}

	m.sent = append(m.sent, msg)
	return &SendResult{MessageID: fmt.Sprintf("wamid.mock.%d", len(m.sent)), StatusCode: 200}, nil
}

// SendText records a text send
func (m *MockWhatsAppService) SendText(_ context.Context, to, body string) (*SendResult, error) {
	return m.record(SentMessage{Type: "text", To: to, Body: body})
}

// SendInteractiveButtons records a button send
func (m *MockWhatsAppService) SendInteractiveButtons(_ context.Context, to, body string, buttons []Button) (*SendResult, error) {
	return m.record(SentMessage{Type: "buttons", To: to, Body: body, Buttons: buttons})
}

// SendInteractiveList records a list send
func (m *MockWhatsAppService) SendInteractiveList(_ context.Context, to string, list ListMessage) (*SendResult, error) {
	return m.record(SentMessage{Type: "list", To: to, Body: list.Body, List: &list})
}

// SendFlowStart records a Flow launch
func (m *MockWhatsAppService) SendFlowStart(_ context.Context, to string, flow FlowStart) (*SendResult, error) {
	return m.record(SentMessage{Type: "flow", To: to, Body: flow.Body, Flow: &flow})
}

// Sent returns all captured sends (for testing assertions)
func (m *MockWhatsAppService) Sent() []SentMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// Last returns the most recent send, or nil when nothing was sent
func (m *MockWhatsAppService) Last() *SentMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.sent) == 0 {
		return nil
	}
	msg := m.sent[len(m.sent)-1]
	return &msg
}

// Clear forgets captured sends
func (m *MockWhatsAppService) Clear() {
	m.mu.Lock()
	m.sent = nil
	m.mu.Unlock()
}
