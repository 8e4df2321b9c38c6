package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aaronwang/live-auction/internal/models"
	"github.com/aaronwang/live-auction/internal/protocol"
)

const maxMessageLength = 500

// errNoChange aborts a mutation that turned out to be a no-op
var errNoChange = errors.New("no change")

var announcements = map[models.ActionType]string{
	models.ActionFairWarning:   "Fair warning",
	models.ActionFinalCall:     "Final call",
	models.ActionReserveNotMet: "Reserve not met",
	models.ActionPass:          "Lot passed",
	models.ActionNextLot:       "Moving to the next lot",
}

// PerformAction applies an auctioneer action. Only admins may call it;
// a failed action leaves the lot exactly as it was.
func (c *Coordinator) PerformAction(ctx context.Context, caller Caller, auctionID string, action models.ActionType, payload string) (*models.AuctionLot, error) {
	if caller.Role != models.RoleAdmin {
		c.logger.Warn("unauthorized admin action", "auction", auctionID, "action", action, "participant", caller.ParticipantRef, "session", caller.SessionID)
		return nil, ErrUnauthorized
	}
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	switch action {
	case models.ActionNextLot:
		return c.nextLot(ctx, caller, auctionID)
	case models.ActionRetract:
		return c.retract(ctx, caller, auctionID)
	case models.ActionSold:
		return c.sold(ctx, caller, auctionID)
	case models.ActionPass:
		return c.pass(ctx, caller, auctionID)
	case models.ActionMessage:
		text, err := cleanMessage(payload)
		if err != nil {
			return nil, err
		}
		return c.announce(ctx, caller, auctionID, action, text, true)
	default:
		return c.announce(ctx, caller, auctionID, action, announcements[action], false)
	}
}

// announce records a status-neutral entry (warnings, reserve notice, messages)
func (c *Coordinator) announce(ctx context.Context, caller Caller, auctionID string, action models.ActionType, text string, allowEnded bool) (*models.AuctionLot, error) {
	var (
		entry models.HistoryEntry
		ob    outbox
	)
	lot, err := c.store.Update(ctx, auctionID, func(lot *models.AuctionLot) error {
		if !allowEnded && lot.Status == models.LotStatusEnded {
			return ErrAuctionNotActive
		}
		entry = c.historyEntry(models.EntryKindAction, action, caller.ParticipantRef, text)
		lot.History = append(lot.History, entry)
		return nil
	}, func(committed *models.AuctionLot) {
		c.broadcast(&ob, committed.ID, protocol.TypeAuctionMessage, c.auctionMessage(committed.ID, entry))
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("admin action", "auction", auctionID, "action", action, "admin", caller.ParticipantRef)
	c.dispatch(lot, &ob)
	return lot, nil
}

func (c *Coordinator) sold(ctx context.Context, caller Caller, auctionID string) (*models.AuctionLot, error) {
	var (
		winner models.Bid
		entry  models.HistoryEntry
		ob     outbox
	)
	lot, err := c.store.Update(ctx, auctionID, func(lot *models.AuctionLot) error {
		if lot.Status != models.LotStatusActive {
			return ErrAuctionNotActive
		}
		if !lot.HasBids() {
			return ErrNoBids
		}

		winner = *lot.LastBid()
		now := c.now().UTC()
		lot.Status = models.LotStatusEnded
		lot.WinnerRef = lot.CurrentBidderRef
		lot.WinnerBidTime = &now

		entry = c.historyEntry(models.EntryKindAction, models.ActionSold, caller.ParticipantRef,
			fmt.Sprintf("Sold to %s for %s", lot.WinnerRef, lot.CurrentBid))
		lot.History = append(lot.History, entry)
		return nil
	}, func(committed *models.AuctionLot) {
		c.broadcast(&ob, committed.ID, protocol.TypeAuctionMessage, c.auctionMessage(committed.ID, entry))

		winnerRef := committed.WinnerRef
		finalBid := committed.CurrentBid
		c.broadcast(&ob, committed.ID, protocol.TypeAuctionEnded, protocol.AuctionEnded{
			AuctionID: committed.ID,
			WinnerRef: &winnerRef,
			FinalBid:  &finalBid,
			Timestamp: *committed.WinnerBidTime,
		})

		if !winner.IsHouse() {
			c.notify(winnerRef, protocol.TypeWinnerNotification, protocol.WinnerNotification{
				AuctionID: committed.ID,
				FinalBid:  finalBid,
				Message:   fmt.Sprintf("Congratulations! You won this lot for %s.", finalBid),
			})
		}
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("lot sold", "auction", auctionID, "winner", lot.WinnerRef, "amount", lot.CurrentBid.String())
	c.dispatch(lot, &ob)
	return lot, nil
}

func (c *Coordinator) pass(ctx context.Context, caller Caller, auctionID string) (*models.AuctionLot, error) {
	var (
		entry models.HistoryEntry
		ob    outbox
	)
	lot, err := c.store.Update(ctx, auctionID, func(lot *models.AuctionLot) error {
		if lot.Status != models.LotStatusActive {
			return ErrAuctionNotActive
		}
		lot.Status = models.LotStatusEnded
		lot.WinnerRef = ""
		lot.WinnerBidTime = nil

		entry = c.historyEntry(models.EntryKindAction, models.ActionPass, caller.ParticipantRef, announcements[models.ActionPass])
		lot.History = append(lot.History, entry)
		return nil
	}, func(committed *models.AuctionLot) {
		c.broadcast(&ob, committed.ID, protocol.TypeAuctionMessage, c.auctionMessage(committed.ID, entry))
		c.broadcast(&ob, committed.ID, protocol.TypeAuctionEnded, protocol.AuctionEnded{
			AuctionID: committed.ID,
			Timestamp: entry.Timestamp,
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("lot passed", "auction", auctionID)
	c.dispatch(lot, &ob)
	return lot, nil
}

// retract pops the latest bid and rederives the current bid from what is
// left. It is audited as its own history entry carrying the removed bid.
func (c *Coordinator) retract(ctx context.Context, caller Caller, auctionID string) (*models.AuctionLot, error) {
	var (
		removed models.Bid
		entry   models.HistoryEntry
		ob      outbox
	)
	lot, err := c.store.Update(ctx, auctionID, func(lot *models.AuctionLot) error {
		if lot.Status == models.LotStatusEnded {
			return ErrAuctionNotActive
		}
		if !lot.HasBids() {
			return errNoChange
		}

		removed = *lot.LastBid()
		lot.BidLog = lot.BidLog[:len(lot.BidLog)-1]
		lot.DeriveCurrentBid()

		entry = c.historyEntry(models.EntryKindAction, models.ActionRetract, caller.ParticipantRef,
			fmt.Sprintf("Bid of %s by %s retracted", removed.BidAmount, removed.Bidder))
		entry.RetractedBid = &removed
		lot.History = append(lot.History, entry)
		return nil
	}, func(committed *models.AuctionLot) {
		c.broadcast(&ob, committed.ID, protocol.TypeAuctionMessage, c.auctionMessage(committed.ID, entry))
		c.broadcast(&ob, committed.ID, protocol.TypeAuctionData, c.snapshotPayload(committed.Clone()))
	})
	if errors.Is(err, errNoChange) {
		return c.GetAuctionData(ctx, auctionID)
	}
	if err != nil {
		return nil, err
	}

	c.logger.Info("bid retracted", "auction", auctionID, "bidder", removed.Bidder, "amount", removed.BidAmount.String(), "admin", caller.ParticipantRef)
	c.dispatch(lot, &ob)
	return lot, nil
}

// nextLot leaves the lot untouched, tells the room the auctioneer is moving
// on and empties the room. Picking the next lot is the admin client's job.
func (c *Coordinator) nextLot(ctx context.Context, caller Caller, auctionID string) (*models.AuctionLot, error) {
	var (
		snapshot *models.AuctionLot
		ob       outbox
	)
	err := c.store.View(ctx, auctionID, func(lot *models.AuctionLot) error {
		entry := c.historyEntry(models.EntryKindAction, models.ActionNextLot, caller.ParticipantRef, announcements[models.ActionNextLot])
		c.broadcast(&ob, auctionID, protocol.TypeAuctionMessage, c.auctionMessage(auctionID, entry))

		for _, s := range c.rooms.CloseRoom(auctionID) {
			c.send(s, protocol.TypeLeft, protocol.AuctionRef{AuctionID: auctionID})
		}
		snapshot = lot
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("room closed for next lot", "auction", auctionID, "admin", caller.ParticipantRef)
	c.dispatchEvents(snapshot.Version, &ob)
	return snapshot, nil
}

func cleanMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty message", ErrInvalidMessage)
	}
	if len([]rune(text)) > maxMessageLength {
		return "", fmt.Errorf("%w: message longer than %d characters", ErrInvalidMessage, maxMessageLength)
	}
	return text, nil
}
