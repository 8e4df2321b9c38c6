package database

import (
	"context"

	"github.com/aaronwang/live-auction/internal/models"
)

// CheckoutFromLot turns a sold lot state into a checkout handoff. Lots that
// are still open, passed or won by the house yield false.
func CheckoutFromLot(lot *models.AuctionLot) (*Checkout, bool) {
	if lot == nil || lot.Status != models.LotStatusEnded {
		return nil, false
	}
	if lot.WinnerRef == "" || lot.WinnerRef == models.HouseBidder {
		return nil, false
	}
	createdAt := lot.UpdatedAt
	if lot.WinnerBidTime != nil {
		createdAt = *lot.WinnerBidTime
	}
	return &Checkout{
		LotID:     lot.ID,
		WinnerRef: lot.WinnerRef,
		Amount:    lot.CurrentBid,
		CreatedAt: createdAt,
	}, true
}

// RecordSale records the checkout for a sold lot and ignores everything else
func (c *Client) RecordSale(ctx context.Context, lot *models.AuctionLot) error {
	co, ok := CheckoutFromLot(lot)
	if !ok {
		return nil
	}
	return c.RecordCheckout(ctx, *co)
}
