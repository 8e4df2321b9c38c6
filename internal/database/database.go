// Package database is the SQL record store for lots, their bid logs and
// history, catalog display details and checkout handoffs. PostgreSQL and
// MySQL are supported.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/aaronwang/live-auction/internal/models"
	"github.com/aaronwang/live-auction/internal/protocol"
)

// Client wraps the SQL connection pool
type Client struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the record store
func Open(driver, dsn string) (*Client, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	dsn, err = normalizeDSN(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{db: db, dialect: d}, nil
}

// InitSchema creates the record store tables
func (c *Client) InitSchema(ctx context.Context) error {
	for _, stmt := range c.dialect.schema {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// SaveLotState implements the coordinator's save contract
func (c *Client) SaveLotState(ctx context.Context, lot *models.AuctionLot) error {
	return c.SaveLot(ctx, lot)
}

// SaveLot writes the full lot state. Versions at or below the stored one
// are ignored, so out-of-order and redelivered saves are harmless.
func (c *Client) SaveLot(ctx context.Context, lot *models.AuctionLot) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var stored uint64
	err = tx.QueryRowContext(ctx, c.dialect.rebind(`SELECT version FROM lots WHERE id = ? FOR UPDATE`), lot.ID).Scan(&stored)
	exists := true
	switch {
	case errors.Is(err, sql.ErrNoRows):
		exists = false
	case err != nil:
		return fmt.Errorf("failed to read lot version: %w", err)
	case stored >= lot.Version:
		return nil
	}

	if err := c.writeLotRow(ctx, tx, lot, exists); err != nil {
		return err
	}
	if err := c.replaceBids(ctx, tx, lot); err != nil {
		return err
	}
	if err := c.appendHistory(ctx, tx, lot); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit lot %s: %w", lot.ID, err)
	}
	return nil
}

func (c *Client) writeLotRow(ctx context.Context, tx *sql.Tx, lot *models.AuctionLot, exists bool) error {
	updatedAt := lot.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	args := []interface{}{
		lot.LotNumber, lot.CatalogID, lot.Status, lot.AuctionType,
		lot.StartingBid, lot.CurrentBid, lot.CurrentBidderRef, lot.ReservePrice,
		lot.WinnerRef, nullTime(lot.WinnerBidTime), lot.Version, updatedAt,
		lot.ID,
	}

	query := `
		UPDATE lots
		SET lot_number = ?, catalog_id = ?, status = ?, auction_type = ?,
		    starting_bid = ?, current_bid = ?, current_bidder_ref = ?, reserve_price = ?,
		    winner_ref = ?, winner_bid_time = ?, version = ?, updated_at = ?
		WHERE id = ?
	`
	if !exists {
		query = `
			INSERT INTO lots (lot_number, catalog_id, status, auction_type,
			                  starting_bid, current_bid, current_bidder_ref, reserve_price,
			                  winner_ref, winner_bid_time, version, updated_at, id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
	}

	if _, err := tx.ExecContext(ctx, c.dialect.rebind(query), args...); err != nil {
		return fmt.Errorf("failed to write lot %s: %w", lot.ID, err)
	}
	return nil
}

// replaceBids rewrites the bid log. Retractions remove bids, so the log
// is replaced rather than appended to.
func (c *Client) replaceBids(ctx context.Context, tx *sql.Tx, lot *models.AuctionLot) error {
	if _, err := tx.ExecContext(ctx, c.dialect.rebind(`DELETE FROM bids WHERE lot_id = ?`), lot.ID); err != nil {
		return fmt.Errorf("failed to clear bids: %w", err)
	}

	insert := c.dialect.rebind(`
		INSERT INTO bids (id, lot_id, seq, bidder, amount, bid_type, bid_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	for i, b := range lot.BidLog {
		if _, err := tx.ExecContext(ctx, insert, b.ID, lot.ID, i, b.Bidder, b.BidAmount, b.BidType, b.BidTime); err != nil {
			return fmt.Errorf("failed to insert bid %s: %w", b.ID, err)
		}
	}
	return nil
}

// appendHistory inserts history entries not yet stored. The feed is
// append-only so existing rows are never touched.
func (c *Client) appendHistory(ctx context.Context, tx *sql.Tx, lot *models.AuctionLot) error {
	insert := c.dialect.insertIgnoreQuery("lot_history",
		"id", "lot_id", "seq", "kind", "action_type", "message", "sender", "retracted_bid", "created_at")

	for i, h := range lot.History {
		retracted, err := encodeRetracted(h.RetractedBid)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insert, h.ID, lot.ID, i, h.Kind, h.ActionType, h.Message, h.Sender, retracted, h.Timestamp); err != nil {
			return fmt.Errorf("failed to insert history entry %s: %w", h.ID, err)
		}
	}
	return nil
}

// LoadLot reads a lot with its bid log and history. An unknown lot is (nil, nil).
func (c *Client) LoadLot(ctx context.Context, auctionID string) (*models.AuctionLot, error) {
	query := c.dialect.rebind(`
		SELECT id, lot_number, catalog_id, status, auction_type, starting_bid, current_bid,
		       current_bidder_ref, reserve_price, winner_ref, winner_bid_time, version, updated_at
		FROM lots
		WHERE id = ?
	`)

	lot := &models.AuctionLot{}
	var winnerBidTime sql.NullTime
	err := c.db.QueryRowContext(ctx, query, auctionID).Scan(
		&lot.ID,
		&lot.LotNumber,
		&lot.CatalogID,
		&lot.Status,
		&lot.AuctionType,
		&lot.StartingBid,
		&lot.CurrentBid,
		&lot.CurrentBidderRef,
		&lot.ReservePrice,
		&lot.WinnerRef,
		&winnerBidTime,
		&lot.Version,
		&lot.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lot %s: %w", auctionID, err)
	}
	if winnerBidTime.Valid {
		t := winnerBidTime.Time.UTC()
		lot.WinnerBidTime = &t
	}
	lot.UpdatedAt = lot.UpdatedAt.UTC()

	if lot.BidLog, err = c.loadBids(ctx, auctionID); err != nil {
		return nil, err
	}
	if lot.History, err = c.loadHistory(ctx, auctionID); err != nil {
		return nil, err
	}
	return lot, nil
}

func (c *Client) loadBids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	rows, err := c.db.QueryContext(ctx, c.dialect.rebind(`
		SELECT id, bidder, amount, bid_type, bid_time
		FROM bids
		WHERE lot_id = ?
		ORDER BY seq
	`), auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	bids := []models.Bid{}
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.Bidder, &b.BidAmount, &b.BidType, &b.BidTime); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		b.BidTime = b.BidTime.UTC()
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

func (c *Client) loadHistory(ctx context.Context, auctionID string) ([]models.HistoryEntry, error) {
	rows, err := c.db.QueryContext(ctx, c.dialect.rebind(`
		SELECT id, kind, action_type, message, sender, retracted_bid, created_at
		FROM lot_history
		WHERE lot_id = ?
		ORDER BY seq
	`), auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	history := []models.HistoryEntry{}
	for rows.Next() {
		var (
			h         models.HistoryEntry
			retracted sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.Kind, &h.ActionType, &h.Message, &h.Sender, &retracted, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if h.RetractedBid, err = decodeRetracted(retracted); err != nil {
			return nil, err
		}
		h.Timestamp = h.Timestamp.UTC()
		history = append(history, h)
	}
	return history, rows.Err()
}

// LotDetails returns display metadata, or (nil, nil) when none is stored
func (c *Client) LotDetails(ctx context.Context, auctionID string) (*protocol.LotDetails, error) {
	var (
		details protocol.LotDetails
		images  string
	)
	err := c.db.QueryRowContext(ctx, c.dialect.rebind(`
		SELECT title, images, estimate FROM lot_details WHERE lot_id = ?
	`), auctionID).Scan(&details.Title, &images, &details.Estimate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lot details: %w", err)
	}
	if details.Images, err = decodeImages(images); err != nil {
		return nil, err
	}
	return &details, nil
}

// Checkout is a pending payment handoff for a sold lot
type Checkout struct {
	LotID     string
	WinnerRef string
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// RecordCheckout stores a checkout handoff. Repeat deliveries for the same
// lot are ignored.
func (c *Client) RecordCheckout(ctx context.Context, co Checkout) error {
	query := c.dialect.insertIgnoreQuery("checkouts", "lot_id", "winner_ref", "amount", "created_at")
	if _, err := c.db.ExecContext(ctx, query, co.LotID, co.WinnerRef, co.Amount, co.CreatedAt); err != nil {
		return fmt.Errorf("failed to record checkout for %s: %w", co.LotID, err)
	}
	return nil
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func encodeRetracted(b *models.Bid) (sql.NullString, error) {
	if b == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal retracted bid: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeRetracted(s sql.NullString) (*models.Bid, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var b models.Bid
	if err := json.Unmarshal([]byte(s.String), &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal retracted bid: %w", err)
	}
	return &b, nil
}

func decodeImages(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var images []string
	if err := json.Unmarshal([]byte(s), &images); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lot images: %w", err)
	}
	return images, nil
}
