package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// HouseBidder is the bidder reference recorded for competitor bids
const HouseBidder = "house"

// BidType tells online bids from auctioneer-entered floor/phone bids
type BidType string

// BidType constants
const (
	BidTypeOnline     BidType = "online"
	BidTypeCompetitor BidType = "competitor"
)

// Valid reports whether t is a known bid type
func (t BidType) Valid() bool {
	return t == BidTypeOnline || t == BidTypeCompetitor
}

// Bid is a single accepted bid in a lot's bid log
type Bid struct {
	ID        string          `json:"id"`
	Bidder    string          `json:"bidder"`
	BidAmount decimal.Decimal `json:"bidAmount"`
	BidTime   time.Time       `json:"bidTime"`
	BidType   BidType         `json:"bidType"`
}

// IsHouse reports whether the bid was placed on behalf of the house
func (b Bid) IsHouse() bool {
	return b.BidType == BidTypeCompetitor || b.Bidder == HouseBidder
}
