package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aaronwang/live-auction/internal/store"
)

// Validation errors are returned to the requester only and never change state.
var (
	ErrAuctionNotFound   = store.ErrNotFound
	ErrUnavailable       = store.ErrUnavailable
	ErrAuctionNotActive  = errors.New("auction is not active")
	ErrNotLiveAuction    = errors.New("auction is not a live auction")
	ErrBidTooLow         = errors.New("bid too low")
	ErrInvalidAmount     = errors.New("invalid bid amount")
	ErrInvalidBidType    = errors.New("invalid bid type")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNoBids            = errors.New("auction has no bids")
	ErrInvalidAction     = errors.New("invalid action")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotJoined         = errors.New("session has not joined this auction")
	ErrInvalidMessage    = errors.New("invalid message")
)

// BidTooLowError carries the minimum acceptable bid at the time of rejection
type BidTooLowError struct {
	Amount  decimal.Decimal
	Minimum decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid too low: %s is below the minimum bid of %s", e.Amount, e.Minimum)
}

// Is makes errors.Is(err, ErrBidTooLow) match
func (e *BidTooLowError) Is(target error) bool {
	return target == ErrBidTooLow
}

// Code maps an error to the stable code sent to clients
func Code(err error) string {
	switch {
	case errors.Is(err, ErrAuctionNotFound):
		return "AUCTION_NOT_FOUND"
	case errors.Is(err, ErrAuctionNotActive):
		return "AUCTION_NOT_ACTIVE"
	case errors.Is(err, ErrNotLiveAuction):
		return "NOT_LIVE_AUCTION"
	case errors.Is(err, ErrBidTooLow):
		return "BID_TOO_LOW"
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidBidType):
		return "INVALID_BID"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrNoBids):
		return "NO_BIDS"
	case errors.Is(err, ErrInvalidAction), errors.Is(err, ErrInvalidTransition):
		return "INVALID_ACTION"
	case errors.Is(err, ErrNotJoined):
		return "NOT_JOINED"
	case errors.Is(err, ErrInvalidMessage):
		return "INVALID_MESSAGE"
	case errors.Is(err, ErrUnavailable):
		return "UNAVAILABLE"
	}
	return "INTERNAL"
}
