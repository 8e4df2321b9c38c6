// Package redis holds the Redis side of the coordinator: the snapshot
// cache, room event Pub/Sub and session token lookup.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aaronwang/live-auction/internal/identity"
	"github.com/aaronwang/live-auction/internal/models"
	"github.com/aaronwang/live-auction/internal/protocol"
)

const (
	eventChannelPrefix = "auction_events:"
	snapshotTTL        = 24 * time.Hour
)

// Client wraps the Redis client with auction-specific operations
type Client struct {
	client *redis.Client
	// Lua script for a version-guarded snapshot write
	snapshotScript *redis.Script
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	// Saves are queued and retried, so an older version can arrive after a
	// newer one. The script only overwrites when the version moves forward.
	snapshotScript := redis.NewScript(`
		-- KEYS[1]: lot:{id}:snapshot
		-- KEYS[2]: lot:{id}:version
		-- ARGV[1]: version
		-- ARGV[2]: snapshot JSON
		-- ARGV[3]: ttl seconds
		local stored = tonumber(redis.call('GET', KEYS[2]) or '0')
		local incoming = tonumber(ARGV[1])
		if incoming <= stored then
			return 0
		end
		redis.call('SET', KEYS[1], ARGV[2], 'EX', ARGV[3])
		redis.call('SET', KEYS[2], ARGV[1], 'EX', ARGV[3])
		return 1
	`)

	return &Client{
		client:         rdb,
		snapshotScript: snapshotScript,
	}, nil
}

func snapshotKey(auctionID string) string { return fmt.Sprintf("lot:%s:snapshot", auctionID) }
func versionKey(auctionID string) string  { return fmt.Sprintf("lot:%s:version", auctionID) }
func sessionKey(token string) string      { return fmt.Sprintf("session:%s", token) }

// EventChannel is the Pub/Sub channel carrying a lot's room events
func EventChannel(auctionID string) string { return eventChannelPrefix + auctionID }

// SaveLotState caches the committed lot unless a newer version is cached
func (c *Client) SaveLotState(ctx context.Context, lot *models.AuctionLot) error {
	data, err := json.Marshal(lot)
	if err != nil {
		return fmt.Errorf("failed to marshal lot: %w", err)
	}

	keys := []string{snapshotKey(lot.ID), versionKey(lot.ID)}
	if err := c.snapshotScript.Run(ctx, c.client, keys, lot.Version, data, int(snapshotTTL.Seconds())).Err(); err != nil {
		return fmt.Errorf("failed to execute snapshot script: %w", err)
	}
	return nil
}

// LoadLot reads the cached snapshot. A cache miss is (nil, nil).
func (c *Client) LoadLot(ctx context.Context, auctionID string) (*models.AuctionLot, error) {
	data, err := c.client.Get(ctx, snapshotKey(auctionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var lot models.AuctionLot
	if err := json.Unmarshal(data, &lot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	// watcher counts are live room state, never cached
	lot.WatcherCount = 0
	return &lot, nil
}

// PublishEvent publishes a room event to Redis Pub/Sub, wrapped with the
// lot version and sequence it was emitted at
func (c *Client) PublishEvent(ctx context.Context, ev protocol.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", ev.Type, err)
	}
	if err := c.client.Publish(ctx, EventChannel(ev.AuctionID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Type, err)
	}
	return nil
}

// Resolve looks up a session token written by the login service as a hash
// with participant and role fields.
func (c *Client) Resolve(ctx context.Context, token string) (*identity.Identity, error) {
	fields, err := c.client.HGetAll(ctx, sessionKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	return identityFromFields(fields)
}

func identityFromFields(fields map[string]string) (*identity.Identity, error) {
	participant := fields["participant"]
	role := models.Role(fields["role"])
	if participant == "" || !role.Valid() {
		return nil, identity.ErrInvalidToken
	}
	return &identity.Identity{ParticipantRef: participant, Role: role}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}
