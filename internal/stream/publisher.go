// Package stream carries lot state and room events over NATS.
//
// Committed lot states go to JetStream so the archival worker receives
// every one at least once. Room events go over core NATS for low-latency
// consumers that can tolerate loss.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/aaronwang/live-auction/internal/models"
	"github.com/aaronwang/live-auction/internal/protocol"
)

// Stream and subject names
const (
	StreamName         = "LOT_STATE"
	lotStatePrefix     = "lot.state."
	eventSubjectPrefix = "auction.events."
)

// Message headers on published room events
const (
	HeaderEventID   = "Event-Id"
	HeaderEventType = "Event-Type"
	HeaderVersion   = "Lot-Version"
	HeaderSeq       = "Event-Seq"
)

// LotStateSubject is the JetStream subject for a lot's committed states
func LotStateSubject(auctionID string) string { return lotStatePrefix + auctionID }

// EventSubject is the core NATS subject for a lot's room events
func EventSubject(auctionID string) string { return eventSubjectPrefix + auctionID }

// EnsureStream creates or updates the lot state stream
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Committed live-auction lot states for archival",
		Subjects:    []string{lotStatePrefix + "*"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Duplicates:  2 * time.Minute,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create/update stream: %w", err)
	}
	return nil
}

// Publisher sends lot states to JetStream and room events to core NATS
type Publisher struct {
	nats   *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewPublisher creates the JetStream context and makes sure the stream exists
func NewPublisher(ctx context.Context, nc *nats.Conn, logger *slog.Logger) (*Publisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	if err := EnsureStream(ctx, js); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("jetstream stream ready", "stream", StreamName)

	return &Publisher{nats: nc, js: js, logger: logger}, nil
}

// SaveLotState publishes a committed lot state and waits for the server
// ack. Retried publishes of the same version are deduplicated by message id.
func (p *Publisher) SaveLotState(ctx context.Context, lot *models.AuctionLot) error {
	data, err := json.Marshal(lot)
	if err != nil {
		return fmt.Errorf("failed to marshal lot: %w", err)
	}

	subject := LotStateSubject(lot.ID)
	ack, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(stateMsgID(lot)))
	if err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}

	p.logger.Debug("published lot state", "subject", subject, "version", lot.Version, "seq", ack.Sequence, "duplicate", ack.Duplicate)
	return nil
}

// PublishEvent publishes an encoded room event on core NATS. The lot
// version and sequence travel as headers.
func (p *Publisher) PublishEvent(_ context.Context, ev protocol.Event) error {
	if err := p.nats.PublishMsg(eventMsg(ev)); err != nil {
		return fmt.Errorf("failed to publish %s to NATS: %w", ev.Type, err)
	}
	return nil
}

func eventMsg(ev protocol.Event) *nats.Msg {
	msg := nats.NewMsg(EventSubject(ev.AuctionID))
	msg.Header.Set(HeaderEventID, uuid.NewString())
	msg.Header.Set(HeaderEventType, ev.Type)
	msg.Header.Set(HeaderVersion, strconv.FormatUint(ev.Version, 10))
	msg.Header.Set(HeaderSeq, strconv.Itoa(ev.Seq))
	msg.Data = ev.Frame
	return msg
}

func stateMsgID(lot *models.AuctionLot) string {
	return lot.ID + "@" + strconv.FormatUint(lot.Version, 10)
}
