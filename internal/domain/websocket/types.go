// internal/domain/websocket/types.go
package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType represents different real-time event types
type EventType string

const (
	// Connection events
	EventTypePing         EventType = "ping"
	EventTypePong         EventType = "pong"
	EventTypeConnected    EventType = "connected"
	EventTypeDisconnected EventType = "disconnected"
	EventTypeError        EventType = "error"

	// Engine events (server -> client)
	EventTypeBilling EventType = "billing:event"

	// Subscription events
	EventTypeSubscribe   EventType = "subscribe"
	EventTypeUnsubscribe EventType = "unsubscribe"
)

// WSMessage is the universal message format
type WSMessage struct {
	Type      EventType              `json:"type"`
	Data      interface{}            `json:"data,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	ID        string                 `json:"id,omitempty"`
}

// Subscription channels that clients can subscribe to
type ChannelType string

const (
	ChannelDiscounts ChannelType = "discounts"
	ChannelReferrals ChannelType = "referrals"
	ChannelInvoices  ChannelType = "invoices"
	ChannelSettings  ChannelType = "settings"
)

// AllChannels is what a client is subscribed to on connect.
var AllChannels = []ChannelType{
	ChannelDiscounts,
	ChannelReferrals,
	ChannelInvoices,
	ChannelSettings,
}

// ChannelForKind maps an event kind such as "discount.applied" to its channel.
func ChannelForKind(kind string) (ChannelType, bool) {
	prefix, _, _ := strings.Cut(kind, ".")
	switch prefix {
	case "discount":
		return ChannelDiscounts, true
	case "referral", "marketing_referral":
		return ChannelReferrals, true
	case "invoice":
		return ChannelInvoices, true
	case "settings":
		return ChannelSettings, true
	}
	return "", false
}

// SubscribeRequest sent by client to subscribe to specific channels
type SubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

// UnsubscribeRequest sent by client to unsubscribe from channels
type UnsubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func NewMessage(eventType EventType, data interface{}) *WSMessage {
	return &WSMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
		ID:        ulid.Make().String(),
	}
}

func (m *WSMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ParseMessage(data []byte) (*WSMessage, error) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}
