// Package models defines the core data structures for agenbot.
//
// It includes the per-customer conversation state, the inbound webhook
// payload shape, and API response types shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// CustomerType classifies the customer as retail or wholesale, driving which
// pricing/policy narrative is used in generated replies.
type CustomerType string

const (
	// CustomerTypeUnknown means the customer has not been classified yet.
	CustomerTypeUnknown CustomerType = ""
	// CustomerTypeRetail is an end customer buying for personal use.
	CustomerTypeRetail CustomerType = "cliente"
	// CustomerTypeWholesale is a reseller buying at wholesale terms.
	CustomerTypeWholesale CustomerType = "lojista"
)

// PendingQuestion tracks which fact the bot is currently waiting to receive
// from the customer. It is authoritative: transitions are driven by this
// field, never inferred from field nullity alone.
type PendingQuestion string

const (
	// PendingNone means no onboarding question is outstanding.
	PendingNone PendingQuestion = ""
	// PendingAskName means the bot asked for the customer's name.
	PendingAskName PendingQuestion = "ask_name"
	// PendingAskType means the bot asked whether the customer is retail or wholesale.
	PendingAskType PendingQuestion = "ask_type"
)

// MaxHistoryMessages bounds the stored conversation history per customer.
// Older entries are evicted first when the bound is exceeded.
const MaxHistoryMessages = 10

// Message is a single (role, content) pair in the conversation history.
type Message struct {
	Role    string `json:"role"`    // "user" or "assistant"
	Content string `json:"content"` // message text
}

// StateMetadata carries bookkeeping for a conversation state entry.
type StateMetadata struct {
	CreatedAt        time.Time `json:"created_at"`
	LastUpdated      time.Time `json:"last_updated"`
	InteractionCount int       `json:"interaction_count"`
}

// ConversationState is the per-customer state keyed by phone number.
type ConversationState struct {
	Phone             string          `json:"phone"`
	Name              string          `json:"name,omitempty"`
	CustomerType      CustomerType    `json:"customer_type,omitempty"`
	PendingQuestion   PendingQuestion `json:"pending_question,omitempty"`
	History           []Message       `json:"history,omitempty"`
	LastReservationID string          `json:"last_reservation_id,omitempty"`
	Metadata          StateMetadata   `json:"metadata"`
}

// NewConversationState returns the state created lazily on first contact:
// the bot owes the customer a name question and everything else is zero.
func NewConversationState(phone string) *ConversationState {
	return &ConversationState{
		Phone:           phone,
		PendingQuestion: PendingAskName,
	}
}

// HasName reports whether the customer's display name has been captured.
func (s *ConversationState) HasName() bool {
	return s.Name != ""
}

// HasType reports whether the customer has been classified.
func (s *ConversationState) HasType() bool {
	return s.CustomerType != CustomerTypeUnknown
}

// AppendHistory appends a (role, content) pair and trims the history FIFO to
// MaxHistoryMessages, evicting the oldest entries first.
func (s *ConversationState) AppendHistory(role, content string) {
	s.History = append(s.History, Message{Role: role, Content: content})
	if len(s.History) > MaxHistoryMessages {
		s.History = s.History[len(s.History)-MaxHistoryMessages:]
	}
}

// Validation errors surfaced to the gateway. Everything else in the pipeline
// degrades to a safe default instead of erroring out of the handler.
var (
	ErrMissingPhone = errors.New("phone number missing from payload")
	ErrEmptyMessage = errors.New("message text is empty")
)

// InboundMessage is the webhook payload shape delivered by the Z-API gateway.
// Only the fields the bot consumes are modeled.
type InboundMessage struct {
	Type    string `json:"type"`
	Phone   string `json:"phone,omitempty"`
	ChatID  string `json:"chatId,omitempty"`
	FromMe  bool   `json:"fromMe,omitempty"`
	FromAPI bool   `json:"fromApi,omitempty"`
	Text    struct {
		Message string `json:"message,omitempty"`
	} `json:"text"`
	Body string `json:"body,omitempty"`
}

// CallbackTypeReceived is the gateway callback type for genuinely inbound
// customer messages. Everything else (delivery receipts, presence, echoes of
// our own sends) is filtered before reaching the state machine.
const CallbackTypeReceived = "ReceivedCallback"

// IsCustomerMessage reports whether the payload is a genuine inbound customer
// message, filtering API-originated and own-device echoes.
func (m *InboundMessage) IsCustomerMessage() bool {
	return m.Type == CallbackTypeReceived && !m.FromMe && !m.FromAPI
}

// PhoneNumber extracts the bare phone identifier, stripping the gateway's
// "@c.us" style chat suffix when present.
func (m *InboundMessage) PhoneNumber() string {
	raw := m.ChatID
	if raw == "" {
		raw = m.Phone
	}
	if i := strings.IndexByte(raw, '@'); i >= 0 {
		raw = raw[:i]
	}
	return raw
}

// MessageText returns the inbound text, preferring the structured text field
// over the legacy body field.
func (m *InboundMessage) MessageText() string {
	if m.Text.Message != "" {
		return m.Text.Message
	}
	return m.Body
}
