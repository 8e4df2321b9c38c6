package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LotStatus is the lifecycle state of a lot
type LotStatus string

// LotStatus constants
const (
	LotStatusScheduled LotStatus = "SCHEDULED"
	LotStatusActive    LotStatus = "ACTIVE"
	LotStatusEnded     LotStatus = "ENDED"
)

// AuctionType distinguishes live (auctioneer driven) from timed lots.
// Only LIVE lots take part in the room protocol.
type AuctionType string

// AuctionType constants
const (
	AuctionTypeLive  AuctionType = "LIVE"
	AuctionTypeTimed AuctionType = "TIMED"
)

// AuctionLot is the authoritative state of a single lot
type AuctionLot struct {
	ID               string              `json:"id"`
	LotNumber        int                 `json:"lotNumber"`
	CatalogID        string              `json:"catalogId"`
	Status           LotStatus           `json:"status"`
	AuctionType      AuctionType         `json:"auctionType"`
	StartingBid      decimal.Decimal     `json:"startingBid"`
	CurrentBid       decimal.Decimal     `json:"currentBid"`
	CurrentBidderRef string              `json:"currentBidderRef,omitempty"`
	ReservePrice     decimal.NullDecimal `json:"reservePrice"`
	BidLog           []Bid               `json:"bidLog"`
	History          []HistoryEntry      `json:"history"`
	WatcherCount     int                 `json:"watcherCount"`
	WinnerRef        string              `json:"winnerRef,omitempty"`
	WinnerBidTime    *time.Time          `json:"winnerBidTime,omitempty"`
	Version          uint64              `json:"version"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// NewLot creates a lot with currentBid at the starting bid and no bids
func NewLot(id string, auctionType AuctionType, startingBid decimal.Decimal) *AuctionLot {
	return &AuctionLot{
		ID:          id,
		Status:      LotStatusScheduled,
		AuctionType: auctionType,
		StartingBid: startingBid,
		CurrentBid:  startingBid,
		BidLog:      []Bid{},
		History:     []HistoryEntry{},
	}
}

// Clone returns a deep copy. Mutations go through clones so a failed
// operation never leaves a half-applied lot behind.
func (l *AuctionLot) Clone() *AuctionLot {
	if l == nil {
		return nil
	}
	c := *l
	c.BidLog = make([]Bid, len(l.BidLog))
	copy(c.BidLog, l.BidLog)
	c.History = make([]HistoryEntry, len(l.History))
	for i, entry := range l.History {
		c.History[i] = entry.clone()
	}
	if l.WinnerBidTime != nil {
		t := *l.WinnerBidTime
		c.WinnerBidTime = &t
	}
	return &c
}

// HasBids reports whether the bid log is non-empty
func (l *AuctionLot) HasBids() bool {
	return len(l.BidLog) > 0
}

// LastBid returns the tail of the bid log, or nil
func (l *AuctionLot) LastBid() *Bid {
	if len(l.BidLog) == 0 {
		return nil
	}
	b := l.BidLog[len(l.BidLog)-1]
	return &b
}

// BidLogTail returns a copy of the last n bids in log order
func (l *AuctionLot) BidLogTail(n int) []Bid {
	if n <= 0 {
		return []Bid{}
	}
	start := len(l.BidLog) - n
	if start < 0 {
		start = 0
	}
	tail := make([]Bid, len(l.BidLog)-start)
	copy(tail, l.BidLog[start:])
	return tail
}

// DeriveCurrentBid recomputes currentBid and currentBidderRef from the bid log
func (l *AuctionLot) DeriveCurrentBid() {
	if last := l.LastBid(); last != nil {
		l.CurrentBid = last.BidAmount
		l.CurrentBidderRef = last.Bidder
		return
	}
	l.CurrentBid = l.StartingBid
	l.CurrentBidderRef = ""
}

// IsLive reports whether the lot takes part in the room protocol
func (l *AuctionLot) IsLive() bool {
	return l.AuctionType == AuctionTypeLive
}
