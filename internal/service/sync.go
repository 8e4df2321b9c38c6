package service

import (
	"context"
	"time"

	"github.com/aaronwang/live-auction/internal/models"
	"github.com/aaronwang/live-auction/internal/protocol"
	"github.com/aaronwang/live-auction/internal/room"
)

const catalogTimeout = 500 * time.Millisecond

// Connect registers a new connection for targeted notifications
func (c *Coordinator) Connect(s room.Session) {
	c.rooms.Attach(s)
}

// Disconnect is an implicit leave for whatever room the session was in.
// Bids already submitted by the session are unaffected.
func (c *Coordinator) Disconnect(ctx context.Context, sessionID string) {
	auctionID, _, wasInRoom := c.rooms.Detach(sessionID)
	if wasInRoom {
		c.broadcastWatchers(ctx, auctionID)
	}
}

// Join puts the session into the lot's room. The session receives the
// joined ack and then the full snapshot before any room event, because
// both are enqueued inside the lot's serialized section.
func (c *Coordinator) Join(ctx context.Context, s room.Session, auctionID string) (*models.AuctionLot, error) {
	details := c.lotDetails(ctx, auctionID)

	var (
		snapshot *models.AuctionLot
		previous string
	)
	err := c.store.View(ctx, auctionID, func(lot *models.AuctionLot) error {
		if !lot.IsLive() {
			return ErrNotLiveAuction
		}

		var watchers int
		watchers, previous = c.rooms.Join(auctionID, s)
		lot.WatcherCount = watchers

		c.send(s, protocol.TypeJoined, protocol.Joined{AuctionID: auctionID, SessionID: s.ID(), Role: s.Role()})
		c.send(s, protocol.TypeAuctionData, protocol.AuctionData{AuctionLot: lot, Details: details})
		c.broadcast(nil, auctionID, protocol.TypeWatcherUpdate, protocol.WatcherUpdate{AuctionID: auctionID, WatcherCount: watchers})

		snapshot = lot
		return nil
	})
	if err != nil {
		return nil, err
	}

	if previous != "" {
		c.broadcastWatchers(ctx, previous)
	}
	c.logger.Debug("session joined", "auction", auctionID, "session", s.ID(), "participant", s.ParticipantRef(), "role", s.Role())
	return snapshot, nil
}

// Leave removes the session from the lot's room
func (c *Coordinator) Leave(ctx context.Context, s room.Session, auctionID string) error {
	err := c.store.View(ctx, auctionID, func(*models.AuctionLot) error {
		watchers, ok := c.rooms.Leave(auctionID, s.ID())
		if !ok {
			return ErrNotJoined
		}
		c.send(s, protocol.TypeLeft, protocol.AuctionRef{AuctionID: auctionID})
		c.broadcast(nil, auctionID, protocol.TypeWatcherUpdate, protocol.WatcherUpdate{AuctionID: auctionID, WatcherCount: watchers})
		return nil
	})
	return err
}

// GetAuctionData returns the current snapshot with the live watcher count
func (c *Coordinator) GetAuctionData(ctx context.Context, auctionID string) (*models.AuctionLot, error) {
	lot, err := c.store.Snapshot(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	lot.WatcherCount = c.rooms.WatcherCount(auctionID)
	return lot, nil
}

// Resync sends the snapshot to one session, ordered after every event the
// session has already been sent for that lot.
func (c *Coordinator) Resync(ctx context.Context, s room.Session, auctionID string) error {
	return c.store.View(ctx, auctionID, func(lot *models.AuctionLot) error {
		c.send(s, protocol.TypeAuctionData, c.snapshotPayload(lot))
		return nil
	})
}

func (c *Coordinator) broadcastWatchers(ctx context.Context, auctionID string) {
	err := c.store.View(ctx, auctionID, func(*models.AuctionLot) error {
		c.broadcast(nil, auctionID, protocol.TypeWatcherUpdate, protocol.WatcherUpdate{
			AuctionID:    auctionID,
			WatcherCount: c.rooms.WatcherCount(auctionID),
		})
		return nil
	})
	if err != nil {
		c.logger.Warn("failed to broadcast watcher count", "auction", auctionID, "error", err)
	}
}

func (c *Coordinator) lotDetails(ctx context.Context, auctionID string) *protocol.LotDetails {
	if c.catalog == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, catalogTimeout)
	defer cancel()

	details, err := c.catalog.LotDetails(ctx, auctionID)
	if err != nil {
		c.logger.Debug("catalog lookup failed", "auction", auctionID, "error", err)
		return nil
	}
	return details
}
