package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aaronwang/live-auction/internal/increment"
	"github.com/aaronwang/live-auction/internal/models"
	"github.com/aaronwang/live-auction/internal/protocol"
)

// bidLogTailSize is how many recent bids ride along with each bidUpdate
const bidLogTailSize = 10

// Amounts are stored as DECIMAL(18, 2).
const amountScale = 2

var maxBidAmount = decimal.New(1, 15)

// BidRequest is a bid attempt after the caller has been resolved
type BidRequest struct {
	AuctionID string
	BidderRef string
	Amount    decimal.Decimal
	BidType   models.BidType
}

func validAmount(amount decimal.Decimal) error {
	switch {
	case !amount.IsPositive():
		return ErrInvalidAmount
	case !amount.Equal(amount.Round(amountScale)):
		return fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, amountScale)
	case amount.GreaterThan(maxBidAmount):
		return fmt.Errorf("%w: above %s", ErrInvalidAmount, maxBidAmount)
	}
	return nil
}

// PlaceBid validates and applies a bid. The minimum is computed from the
// current bid inside the lot's serialized section, so of several
// concurrent bids at the same amount exactly one can win.
func (c *Coordinator) PlaceBid(ctx context.Context, req BidRequest) (*models.AuctionLot, error) {
	if err := validAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.BidType == "" {
		req.BidType = models.BidTypeOnline
	}
	if !req.BidType.Valid() {
		return nil, ErrInvalidBidType
	}
	if req.BidType == models.BidTypeCompetitor {
		req.BidderRef = models.HouseBidder
	}
	if req.BidderRef == "" {
		return nil, fmt.Errorf("%w: missing bidder", ErrUnauthorized)
	}

	var (
		previousBidder string
		accepted       models.Bid
		ob             outbox
	)
	lot, err := c.store.Update(ctx, req.AuctionID, func(lot *models.AuctionLot) error {
		if !lot.IsLive() {
			return ErrNotLiveAuction
		}
		if lot.Status != models.LotStatusActive {
			return ErrAuctionNotActive
		}

		minimum := increment.MinimumNextBid(lot.CurrentBid)
		if req.Amount.LessThan(minimum) {
			return &BidTooLowError{Amount: req.Amount, Minimum: minimum}
		}

		previousBidder = lot.CurrentBidderRef
		accepted = models.Bid{
			ID:        c.newID(),
			Bidder:    req.BidderRef,
			BidAmount: req.Amount,
			BidTime:   c.now().UTC(),
			BidType:   req.BidType,
		}
		lot.BidLog = append(lot.BidLog, accepted)
		lot.CurrentBid = accepted.BidAmount
		lot.CurrentBidderRef = accepted.Bidder
		return nil
	}, func(committed *models.AuctionLot) {
		c.broadcast(&ob, committed.ID, protocol.TypeBidUpdate, protocol.BidUpdate{
			AuctionID:  committed.ID,
			BidAmount:  accepted.BidAmount,
			BidderRef:  accepted.Bidder,
			BidType:    accepted.BidType,
			Timestamp:  accepted.BidTime,
			BidLogTail: committed.BidLogTail(bidLogTailSize),
			Version:    committed.Version,
		})

		if previousBidder != "" && previousBidder != accepted.Bidder && previousBidder != models.HouseBidder {
			c.notify(previousBidder, protocol.TypeOutbidNotification, protocol.OutbidNotification{
				AuctionID:  committed.ID,
				Message:    fmt.Sprintf("You have been outbid. The current bid is %s.", accepted.BidAmount),
				CurrentBid: accepted.BidAmount,
			})
		}
	})
	if err != nil {
		c.logger.Debug("bid rejected", "auction", req.AuctionID, "bidder", req.BidderRef, "amount", req.Amount.String(), "error", err)
		return nil, err
	}

	c.logger.Info("bid accepted", "auction", lot.ID, "bidder", accepted.Bidder, "amount", accepted.BidAmount.String(), "type", accepted.BidType, "version", lot.Version)
	c.dispatch(lot, &ob)
	return lot, nil
}

// SubmitBid is PlaceBid for a room session: the session must be in the
// room, observers cannot bid, and competitor bids are admin-only and
// recorded against the house.
func (c *Coordinator) SubmitBid(ctx context.Context, caller Caller, auctionID string, amount decimal.Decimal, bidType models.BidType) (*models.AuctionLot, error) {
	if !c.rooms.InRoom(auctionID, caller.SessionID) {
		return nil, ErrNotJoined
	}
	if bidType == "" {
		bidType = models.BidTypeOnline
	}

	switch {
	case caller.Role == models.RoleObserver:
		return nil, fmt.Errorf("%w: observers cannot bid", ErrUnauthorized)
	case bidType == models.BidTypeCompetitor && caller.Role != models.RoleAdmin:
		c.logger.Warn("non-admin attempted competitor bid", "auction", auctionID, "participant", caller.ParticipantRef)
		return nil, fmt.Errorf("%w: competitor bids require admin", ErrUnauthorized)
	case bidType == models.BidTypeOnline && caller.Role != models.RoleBidder:
		return nil, fmt.Errorf("%w: only bidders place online bids", ErrUnauthorized)
	}

	return c.PlaceBid(ctx, BidRequest{
		AuctionID: auctionID,
		BidderRef: caller.ParticipantRef,
		Amount:    amount,
		BidType:   bidType,
	})
}
