package service

import (
	"context"

	"github.com/aaronwang/live-auction/internal/models"
	"github.com/aaronwang/live-auction/internal/protocol"
)

// StartLot opens a scheduled lot for bidding
func (c *Coordinator) StartLot(ctx context.Context, caller Caller, auctionID string) (*models.AuctionLot, error) {
	return c.transition(ctx, caller, auctionID, models.ActionStart, models.LotStatusScheduled, "Bidding is open")
}

// ReopenLot puts an ended lot back into bidding to correct a mistaken
// ending. The winner is cleared; the bid log is kept.
func (c *Coordinator) ReopenLot(ctx context.Context, caller Caller, auctionID string) (*models.AuctionLot, error) {
	return c.transition(ctx, caller, auctionID, models.ActionReopen, models.LotStatusEnded, "Lot reopened")
}

func (c *Coordinator) transition(ctx context.Context, caller Caller, auctionID string, action models.ActionType, from models.LotStatus, text string) (*models.AuctionLot, error) {
	if caller.Role != models.RoleAdmin {
		c.logger.Warn("unauthorized lifecycle change", "auction", auctionID, "action", action, "participant", caller.ParticipantRef)
		return nil, ErrUnauthorized
	}

	var (
		entry models.HistoryEntry
		ob    outbox
	)
	lot, err := c.store.Update(ctx, auctionID, func(lot *models.AuctionLot) error {
		if !lot.IsLive() {
			return ErrNotLiveAuction
		}
		if lot.Status != from {
			return ErrInvalidTransition
		}
		lot.Status = models.LotStatusActive
		lot.WinnerRef = ""
		lot.WinnerBidTime = nil

		entry = c.historyEntry(models.EntryKindLifecycle, action, caller.ParticipantRef, text)
		lot.History = append(lot.History, entry)
		return nil
	}, func(committed *models.AuctionLot) {
		c.broadcast(&ob, committed.ID, protocol.TypeAuctionMessage, c.auctionMessage(committed.ID, entry))
		c.broadcast(&ob, committed.ID, protocol.TypeAuctionData, c.snapshotPayload(committed.Clone()))
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("lot status changed", "auction", auctionID, "action", action, "from", from, "to", lot.Status)
	c.dispatch(lot, &ob)
	return lot, nil
}
