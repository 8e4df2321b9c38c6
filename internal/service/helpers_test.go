package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"

	"github.com/aaronwang/live-auction/internal/models"
	"github.com/aaronwang/live-auction/internal/protocol"
	"github.com/aaronwang/live-auction/internal/room"
	"github.com/aaronwang/live-auction/internal/store"
)

type fakeSession struct {
	id          string
	participant string
	role        models.Role

	mu     sync.Mutex
	frames []protocol.Envelope
}

func newSession(id, participant string, role models.Role) *fakeSession {
	return &fakeSession{id: id, participant: participant, role: role}
}

func (f *fakeSession) ID() string             { return f.id }
func (f *fakeSession) ParticipantRef() string { return f.participant }
func (f *fakeSession) Role() models.Role      { return f.role }

func (f *fakeSession) Send(payload []byte) bool {
	var env protocol.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, env)
	return true
}

func (f *fakeSession) caller() Caller {
	return Caller{SessionID: f.id, ParticipantRef: f.participant, Role: f.role}
}

func (f *fakeSession) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	for i, env := range f.frames {
		out[i] = env.Type
	}
	return out
}

func (f *fakeSession) ofType(msgType string) []protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Envelope
	for _, env := range f.frames {
		if env.Type == msgType {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeSession) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

type fixture struct {
	coord *Coordinator
	store *store.Store
	rooms *room.Registry
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st := store.New()
	rooms := room.NewRegistry(nil)
	return &fixture{coord: NewCoordinator(st, rooms, opts...), store: st, rooms: rooms}
}

func (f *fixture) seed(id string, status models.LotStatus, starting int64) {
	lot := models.NewLot(id, models.AuctionTypeLive, decimal.NewFromInt(starting))
	lot.Status = status
	f.store.Put(lot)
}

// connect attaches the session and joins it to the lot's room
func (f *fixture) connect(t *testing.T, s *fakeSession, auctionID string) {
	t.Helper()
	f.coord.Connect(s)
	_, err := f.coord.Join(context.Background(), s, auctionID)
	assert.NoError(t, err)
}

func (f *fixture) lot(t *testing.T, id string) *models.AuctionLot {
	t.Helper()
	lot, err := f.coord.GetAuctionData(context.Background(), id)
	assert.NoError(t, err)
	return lot
}

// current is safe to call from worker goroutines
func (f *fixture) current(ctx context.Context, id string) decimal.Decimal {
	lot, err := f.coord.GetAuctionData(ctx, id)
	if err != nil {
		return decimal.Zero
	}
	return lot.CurrentBid
}

func amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func bid(id, bidder string, v int64) BidRequest {
	return BidRequest{AuctionID: id, BidderRef: bidder, Amount: amount(v), BidType: models.BidTypeOnline}
}

func decodeAs[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var v T
	assert.NoError(t, env.DecodePayload(&v))
	return v
}

func decimalOf(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
