package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"gavel-auction-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MessageType string

const (
	// Client to Server message types
	MessageTypeSubscribe     MessageType = "subscribe"
	MessageTypeUnsubscribe   MessageType = "unsubscribe"
	MessageTypePlaceBid      MessageType = "place_bid"
	MessageTypeGetBid        MessageType = "get_bid"
	MessageTypeGetLeadingBid MessageType = "get_leading_bid"
	MessageTypeGetAuction    MessageType = "get_auction"
	MessageTypeGetResult     MessageType = "get_result"
	MessageTypeCreateAuction MessageType = "create_auction"
	MessageTypePing          MessageType = "ping"

	// Server to Client message types
	MessageTypeBidPlaced      MessageType = "bid_placed"
	MessageTypeBidAccepted    MessageType = "bid_accepted"
	MessageTypeBidStatus      MessageType = "bid_status"
	MessageTypeAuctionClosed  MessageType = "auction_closed"
	MessageTypeAuctionUpdate  MessageType = "auction_update"
	MessageTypeAuctionCreated MessageType = "auction_created"
	MessageTypeAuctionResult  MessageType = "auction_result"
	MessageTypeError          MessageType = "error"
	MessageTypePong           MessageType = "pong"
)

type ClientMessage struct {
	Type      MessageType            `json:"type"`
	AuctionID *uuid.UUID             `json:"auction_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// ServerMessage represents a message sent from server to client
type ServerMessage struct {
	Type      MessageType            `json:"type"`
	AuctionID *uuid.UUID             `json:"auction_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Error     *string                `json:"error,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

func NewServerMessage(msgType MessageType) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Data:      make(map[string]interface{}),
		Timestamp: time.Now().Unix(),
	}
}

func NewErrorMessage(err string, auctionID *uuid.UUID) *ServerMessage {
	return &ServerMessage{
		Type:      MessageTypeError,
		AuctionID: auctionID,
		Error:     &err,
		Timestamp: time.Now().Unix(),
	}
}

// ParseClientMessage parses a JSON message from client
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse client message: %w", err)
	}

	if msg.Type == "" {
		return nil, shared.ErrMessageTypeRequired
	}

	return &msg, nil
}

// Validate validates a client message
func (m *ClientMessage) Validate() error {
	switch m.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe, MessageTypeGetAuction, MessageTypeGetResult, MessageTypeGetLeadingBid:
		return m.validateAuctionID()
	case MessageTypePlaceBid:
		if err := m.validateAuctionID(); err != nil {
			return err
		}
		amount, err := m.Amount()
		if err != nil {
			return err
		}
		if !amount.IsPositive() {
			return shared.ErrInvalidAmount
		}
		if _, err := m.OptionalUUID("bid_id"); err != nil {
			return err
		}
	case MessageTypeGetBid:
		id, err := m.OptionalUUID("bid_id")
		if err != nil {
			return err
		}
		if id == nil {
			return shared.ErrBidIDRequired
		}
	case MessageTypeCreateAuction:
		if m.Data["product_id"] == nil {
			return shared.ErrProductIDRequired
		}
		if m.Data["start_time"] == nil {
			return shared.ErrStartTimeRequired
		}
		if m.Data["end_time"] == nil {
			return shared.ErrEndTimeRequired
		}
	case MessageTypePing:

	default:
		return shared.ErrUnknownMessageType
	}

	return nil
}

func (m *ClientMessage) validateAuctionID() error {
	if m.AuctionID == nil || *m.AuctionID == uuid.Nil {
		return shared.ErrAuctionIDRequired
	}
	return nil
}

// Amount reads data.amount, accepting a JSON number or a decimal string
func (m *ClientMessage) Amount() (decimal.Decimal, error) {
	return m.Decimal("amount", true)
}

// Decimal reads a monetary field. A missing optional field is zero.
func (m *ClientMessage) Decimal(key string, required bool) (decimal.Decimal, error) {
	switch v := m.Data[key].(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, shared.ErrInvalidAmount
		}
		return d, nil
	case nil:
		if required {
			return decimal.Zero, shared.ErrInvalidAmount
		}
		return decimal.Zero, nil
	default:
		return decimal.Zero, shared.ErrInvalidAmount
	}
}

// OptionalUUID reads a uuid field, returning nil when it is absent
func (m *ClientMessage) OptionalUUID(key string) (*uuid.UUID, error) {
	raw, ok := m.Data[key]
	if !ok || raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("invalid %s format", key)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s format", key)
	}
	return &id, nil
}

// Time reads an RFC 3339 timestamp field
func (m *ClientMessage) Time(key string) (time.Time, error) {
	s, ok := m.Data[key].(string)
	if !ok {
		return time.Time{}, shared.ErrInvalidTimeFormat
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, shared.ErrInvalidTimeFormat
	}
	return t, nil
}
