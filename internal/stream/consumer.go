package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/aaronwang/live-auction/internal/models"
)

// DurableName is the archival consumer's durable name
const DurableName = "archival-worker"

const (
	maxDeliver  = 5
	saveTimeout = 10 * time.Second
)

// errMalformed marks a message that can never be processed
var errMalformed = errors.New("malformed lot state")

// LotWriter persists a lot state received from the stream. RecordSale hands
// an ended lot over to checkout and must ignore repeats and unsold lots.
type LotWriter interface {
	SaveLot(ctx context.Context, lot *models.AuctionLot) error
	RecordSale(ctx context.Context, lot *models.AuctionLot) error
}

// Consumer drains the lot state stream into a LotWriter
type Consumer struct {
	js     jetstream.JetStream
	writer LotWriter
	logger *slog.Logger
}

// NewConsumer creates a consumer on an existing JetStream context
func NewConsumer(js jetstream.JetStream, writer LotWriter, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{js: js, writer: writer, logger: logger}
}

// Start consumes until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	if err := EnsureStream(ctx, c.js); err != nil {
		return err
	}
	cons, err := c.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       DurableName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: lotStatePrefix + "*",
		MaxDeliver:    maxDeliver,
		AckWait:       30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		c.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	c.logger.Info("consuming lot states", "stream", StreamName, "durable", DurableName)
	<-ctx.Done()
	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, msg jetstream.Msg) {
	err := c.process(ctx, msg.Data())
	switch {
	case err == nil:
		if err := msg.Ack(); err != nil {
			c.logger.Warn("failed to ack lot state", "subject", msg.Subject(), "error", err)
		}
	case errors.Is(err, errMalformed):
		c.logger.Error("discarding lot state", "subject", msg.Subject(), "error", err)
		_ = msg.Term()
	default:
		c.logger.Error("failed to persist lot state", "subject", msg.Subject(), "error", err)
		_ = msg.Nak()
	}
}

func (c *Consumer) process(ctx context.Context, data []byte) error {
	var lot models.AuctionLot
	if err := json.Unmarshal(data, &lot); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if lot.ID == "" {
		return fmt.Errorf("%w: missing id", errMalformed)
	}

	dbCtx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()

	if err := c.writer.SaveLot(dbCtx, &lot); err != nil {
		return err
	}
	c.logger.Debug("persisted lot state", "auction", lot.ID, "version", lot.Version)

	if lot.Status != models.LotStatusEnded {
		return nil
	}
	if err := c.writer.RecordSale(dbCtx, &lot); err != nil {
		return fmt.Errorf("failed to hand off %s to checkout: %w", lot.ID, err)
	}
	return nil
}
