package service

import (
	"context"
	"fmt"

	"github.com/aaronwang/live-auction/internal/models"
	"github.com/aaronwang/live-auction/internal/protocol"
)

// SendMessage posts a chat line to the room. Admin lines are recorded as
// MESSAGE actions; observers cannot post.
func (c *Coordinator) SendMessage(ctx context.Context, caller Caller, auctionID, text string) (*models.AuctionLot, error) {
	if !c.rooms.InRoom(auctionID, caller.SessionID) {
		return nil, ErrNotJoined
	}
	if caller.Role == models.RoleAdmin {
		return c.PerformAction(ctx, caller, auctionID, models.ActionMessage, text)
	}
	if caller.Role != models.RoleBidder {
		return nil, fmt.Errorf("%w: observers cannot post messages", ErrUnauthorized)
	}

	text, err := cleanMessage(text)
	if err != nil {
		return nil, err
	}

	var (
		entry models.HistoryEntry
		ob    outbox
	)
	lot, err := c.store.Update(ctx, auctionID, func(lot *models.AuctionLot) error {
		entry = c.historyEntry(models.EntryKindChat, "", caller.ParticipantRef, text)
		lot.History = append(lot.History, entry)
		return nil
	}, func(committed *models.AuctionLot) {
		c.broadcast(&ob, committed.ID, protocol.TypeAuctionMessage, c.auctionMessage(committed.ID, entry))
	})
	if err != nil {
		return nil, err
	}

	c.dispatch(lot, &ob)
	return lot, nil
}
