// Package protocol defines the JSON messages exchanged with room clients.
//
// Every frame is an envelope {"type": ..., "payload": {...}}.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aaronwang/live-auction/internal/models"
)

// Client -> coordinator
const (
	TypeJoinAuction    = "joinAuction"
	TypeLeaveAuction   = "leaveAuction"
	TypeGetAuctionData = "getAuctionData"
	TypePlaceBid       = "placeBid"
	TypeAdminAction    = "adminAction"
	TypeSendMessage    = "sendMessage"
	TypeStartAuction   = "startAuction"
	TypeReopenAuction  = "reopenAuction"
)

// Coordinator -> client
const (
	TypeJoined             = "joined"
	TypeLeft               = "left"
	TypeAuctionData        = "auctionData"
	TypeBidUpdate          = "bidUpdate"
	TypeWatcherUpdate      = "watcherUpdate"
	TypeAuctionMessage     = "auctionMessage"
	TypeAuctionEnded       = "auctionEnded"
	TypeOutbidNotification = "outbidNotification"
	TypeWinnerNotification = "winnerNotification"
	TypeError              = "error"
)

// Envelope wraps every frame on the wire
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals payload into an envelope of the given type
func Encode(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// Decode parses an envelope
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("invalid envelope: missing type")
	}
	return &env, nil
}

// DecodePayload unmarshals the envelope payload into v
func (e *Envelope) DecodePayload(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", e.Type, err)
	}
	return nil
}

// Event is a room frame forwarded to downstream consumers. Version is the
// lot version the frame was emitted at and Seq its position among the frames
// of that version, so consumers can restore order across publishers.
type Event struct {
	AuctionID string          `json:"auctionId"`
	Type      string          `json:"type"`
	Version   uint64          `json:"version"`
	Seq       int             `json:"seq"`
	Frame     json.RawMessage `json:"frame"`
}

// JoinAuction asks to enter a room. ParticipantRef and Role are hints;
// the connection's resolved identity is authoritative and Role can only downgrade it.
type JoinAuction struct {
	AuctionID      string      `json:"auctionId"`
	ParticipantRef string      `json:"participantRef,omitempty"`
	Role           models.Role `json:"role,omitempty"`
}

// AuctionRef carries only an auction id (leaveAuction, getAuctionData, startAuction, reopenAuction)
type AuctionRef struct {
	AuctionID string `json:"auctionId"`
}

// PlaceBid is a bid attempt
type PlaceBid struct {
	AuctionID string          `json:"auctionId"`
	BidAmount decimal.Decimal `json:"bidAmount"`
	BidType   models.BidType  `json:"bidType,omitempty"`
}

// AdminAction is a privileged auctioneer verb
type AdminAction struct {
	AuctionID  string            `json:"auctionId"`
	ActionType models.ActionType `json:"actionType"`
	Payload    string            `json:"payload,omitempty"`
}

// SendMessage is a chat line
type SendMessage struct {
	AuctionID string `json:"auctionId"`
	Text      string `json:"text"`
}

// Joined acknowledges a join; the snapshot always follows it
type Joined struct {
	AuctionID string      `json:"auctionId"`
	SessionID string      `json:"sessionId"`
	Role      models.Role `json:"role"`
}

// AuctionData is the full lot snapshot
type AuctionData struct {
	*models.AuctionLot
	Details *LotDetails `json:"details,omitempty"`
}

// LotDetails is display-only catalog metadata
type LotDetails struct {
	Title    string   `json:"title"`
	Images   []string `json:"images,omitempty"`
	Estimate string   `json:"estimate,omitempty"`
}

// BidUpdate announces an accepted bid
type BidUpdate struct {
	AuctionID  string          `json:"auctionId"`
	BidAmount  decimal.Decimal `json:"bidAmount"`
	BidderRef  string          `json:"bidderRef"`
	BidType    models.BidType  `json:"bidType"`
	Timestamp  time.Time       `json:"timestamp"`
	BidLogTail []models.Bid    `json:"bidLogTail"`
	Version    uint64          `json:"version"`
}

// WatcherUpdate carries the room's session count
type WatcherUpdate struct {
	AuctionID    string `json:"auctionId"`
	WatcherCount int    `json:"watcherCount"`
}

// AuctionMessage is an admin action or chat line in the room feed
type AuctionMessage struct {
	AuctionID  string            `json:"auctionId"`
	EntryID    string            `json:"entryId"`
	ActionType models.ActionType `json:"actionType,omitempty"`
	Message    string            `json:"message,omitempty"`
	Sender     string            `json:"sender"`
	Timestamp  time.Time         `json:"timestamp"`
}

// AuctionEnded closes the lot. WinnerRef is null on PASS.
type AuctionEnded struct {
	AuctionID string           `json:"auctionId"`
	WinnerRef *string          `json:"winnerRef"`
	FinalBid  *decimal.Decimal `json:"finalBid,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// OutbidNotification goes to the bidder who just lost the lead
type OutbidNotification struct {
	AuctionID  string          `json:"auctionId"`
	Message    string          `json:"message"`
	CurrentBid decimal.Decimal `json:"currentBid"`
}

// WinnerNotification goes to the winning bidder on SOLD
type WinnerNotification struct {
	AuctionID string          `json:"auctionId"`
	FinalBid  decimal.Decimal `json:"finalBid"`
	Message   string          `json:"message"`
}

// Error is sent to the requester only
type Error struct {
	Message     string           `json:"message"`
	Code        string           `json:"code"`
	RequestType string           `json:"requestType,omitempty"`
	AuctionID   string           `json:"auctionId,omitempty"`
	MinimumBid  *decimal.Decimal `json:"minimumBid,omitempty"`
}
