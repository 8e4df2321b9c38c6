// Package service is the live-auction coordinator: bid acceptance, admin
// actions, room join/leave with snapshot sync, and chat.
//
// Every state change for a lot runs inside that lot's serialized section in
// the state store. Room fan-out happens inside the section too (it only
// enqueues onto session buffers), which gives every session the same event
// order. Persistence and downstream publishing are queued after the
// section is released.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/aaronwang/live-auction/internal/models"
	"github.com/aaronwang/live-auction/internal/persistence"
	"github.com/aaronwang/live-auction/internal/protocol"
	"github.com/aaronwang/live-auction/internal/room"
	"github.com/aaronwang/live-auction/internal/store"
)

// LotSaver persists committed lot state. Calls are fire-and-forget.
type LotSaver interface {
	SaveLotState(ctx context.Context, lot *models.AuctionLot) error
}

// EventPublisher forwards room events to downstream consumers
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev protocol.Event) error
}

// Catalog supplies display-only lot metadata
type Catalog interface {
	LotDetails(ctx context.Context, auctionID string) (*protocol.LotDetails, error)
}

// Caller is the resolved identity behind a request
type Caller struct {
	SessionID      string
	ParticipantRef string
	Role           models.Role
}

// Coordinator owns lot and room state for live auctions
type Coordinator struct {
	store      *store.Store
	rooms      *room.Registry
	queue      *persistence.Queue
	savers     []LotSaver
	publishers []EventPublisher
	catalog    Catalog
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithQueue sets the async queue used for saves and publishing
func WithQueue(q *persistence.Queue) Option {
	return func(c *Coordinator) { c.queue = q }
}

// WithSavers adds lot state sinks
func WithSavers(savers ...LotSaver) Option {
	return func(c *Coordinator) { c.savers = append(c.savers, savers...) }
}

// WithPublishers adds downstream event sinks
func WithPublishers(publishers ...EventPublisher) Option {
	return func(c *Coordinator) { c.publishers = append(c.publishers, publishers...) }
}

// WithCatalog sets the display metadata source
func WithCatalog(catalog Catalog) Option {
	return func(c *Coordinator) { c.catalog = catalog }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithClock overrides time.Now for bid and history timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator wires the engines around a state store and room registry
func NewCoordinator(st *store.Store, rooms *room.Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  st,
		rooms:  rooms,
		logger: slog.Default(),
		now:    time.Now,
		newID:  func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rooms exposes the registry for read-only stats
func (c *Coordinator) Rooms() *room.Registry {
	return c.rooms
}

// outbox collects the room events of one committed change so they can be
// published downstream after the serialized section ends.
type outbox struct {
	events []protocol.Event
}

// broadcast encodes and fans out an event to the room, recording it for
// downstream publishing. Called inside the serialized section.
func (c *Coordinator) broadcast(ob *outbox, auctionID, eventType string, payload interface{}) {
	data, err := protocol.Encode(eventType, payload)
	if err != nil {
		c.logger.Error("failed to encode event", "event", eventType, "auction", auctionID, "error", err)
		return
	}
	c.rooms.BroadcastToRoom(auctionID, data)
	if ob != nil {
		ob.events = append(ob.events, protocol.Event{AuctionID: auctionID, Type: eventType, Frame: data})
	}
}

// notify sends a targeted event to every connected session of a participant
func (c *Coordinator) notify(participantRef, eventType string, payload interface{}) {
	data, err := protocol.Encode(eventType, payload)
	if err != nil {
		c.logger.Error("failed to encode notification", "event", eventType, "error", err)
		return
	}
	if c.rooms.NotifyParticipant(participantRef, data) == 0 {
		c.logger.Debug("notification dropped, participant offline", "event", eventType, "participant", participantRef)
	}
}

func (c *Coordinator) send(s room.Session, eventType string, payload interface{}) {
	data, err := protocol.Encode(eventType, payload)
	if err != nil {
		c.logger.Error("failed to encode message", "event", eventType, "error", err)
		return
	}
	s.Send(data)
}

// dispatch queues persistence of the committed lot and downstream publishing
// of its events. It never blocks the caller.
func (c *Coordinator) dispatch(lot *models.AuctionLot, ob *outbox) {
	if c.queue == nil {
		return
	}
	lot = lot.Clone()
	for _, saver := range c.savers {
		saver := saver
		c.queue.Enqueue(persistence.Job{
			Name: "save lot " + lot.ID,
			Run: func(ctx context.Context) error {
				return saver.SaveLotState(ctx, lot)
			},
		})
	}
	c.dispatchEvents(lot.Version, ob)
}

// dispatchEvents stamps the outbox events with the lot version they were
// emitted at and queues them for every publisher.
func (c *Coordinator) dispatchEvents(version uint64, ob *outbox) {
	if c.queue == nil || ob == nil {
		return
	}
	for i, ev := range ob.events {
		ev.Version = version
		ev.Seq = i
		for _, pub := range c.publishers {
			pub := pub
			c.queue.Enqueue(persistence.Job{
				Name: "publish " + ev.Type + " " + ev.AuctionID,
				Run: func(ctx context.Context) error {
					return pub.PublishEvent(ctx, ev)
				},
			})
		}
	}
}

func (c *Coordinator) historyEntry(kind models.EntryKind, action models.ActionType, sender, message string) models.HistoryEntry {
	return models.HistoryEntry{
		ID:         c.newID(),
		Kind:       kind,
		ActionType: action,
		Message:    message,
		Sender:     sender,
		Timestamp:  c.now().UTC(),
	}
}

func (c *Coordinator) auctionMessage(auctionID string, entry models.HistoryEntry) protocol.AuctionMessage {
	return protocol.AuctionMessage{
		AuctionID:  auctionID,
		EntryID:    entry.ID,
		ActionType: entry.ActionType,
		Message:    entry.Message,
		Sender:     entry.Sender,
		Timestamp:  entry.Timestamp,
	}
}

func (c *Coordinator) snapshotPayload(lot *models.AuctionLot) protocol.AuctionData {
	lot.WatcherCount = c.rooms.WatcherCount(lot.ID)
	return protocol.AuctionData{AuctionLot: lot}
}
