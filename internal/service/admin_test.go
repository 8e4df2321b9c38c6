package service

import (
	"context"
	"errors"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/aaronwang/live-auction/internal/models"
	"github.com/aaronwang/live-auction/internal/protocol"
)

var adminCaller = Caller{SessionID: "s-admin", ParticipantRef: "auctioneer", Role: models.RoleAdmin}

func TestSoldEndsLotAndBlocksBids(t *testing.T) {
	f := newFixture(t)
	f.seed("lot-1", models.LotStatusActive, 4000)
	ctx := context.Background()

	alice := newSession("s-alice", "A", models.RoleBidder)
	f.connect(t, alice, "lot-1")
	_, err := f.coord.PlaceBid(ctx, bid("lot-1", "A", 5000))
	assert.NoError(t, err)

	lot, err := f.coord.PerformAction(ctx, adminCaller, "lot-1", models.ActionSold, "")
	assert.NoError(t, err)
	check.Equal(t, models.LotStatusEnded, lot.Status)
	check.Equal(t, "A", lot.WinnerRef)
	check.NotNil(t, lot.WinnerBidTime)

	ended := alice.ofType(protocol.TypeAuctionEnded)
	assert.Equal(t, 1, len(ended))
	payload := decodeAs[protocol.AuctionEnded](t, ended[0])
	assert.NotNil(t, payload.WinnerRef)
	check.Equal(t, "A", *payload.WinnerRef)
	check.Equal(t, "5000", payload.FinalBid.String())

	won := alice.ofType(protocol.TypeWinnerNotification)
	assert.Equal(t, 1, len(won))
	check.Equal(t, "5000", decodeAs[protocol.WinnerNotification](t, won[0]).FinalBid.String())

	_, err = f.coord.PlaceBid(ctx, bid("lot-1", "B", 6000))
	check.True(t, errors.Is(err, ErrAuctionNotActive))

	_, err = f.coord.PerformAction(ctx, adminCaller, "lot-1", models.ActionSold, "")
	check.True(t, errors.Is(err, ErrAuctionNotActive))
	check.Equal(t, "A", f.lot(t, "lot-1").WinnerRef)
}

func TestSoldRequiresBids(t *testing.T) {
	f := newFixture(t)
	f.seed("lot-1", models.LotStatusActive, 100)

	_, err := f.coord.PerformAction(context.Background(), adminCaller, "lot-1", models.ActionSold, "")
	check.True(t, errors.Is(err, ErrNoBids))

	lot := f.lot(t, "lot-1")
	check.Equal(t, models.LotStatusActive, lot.Status)
	check.Equal(t, "", lot.WinnerRef)
	check.Equal(t, uint64(0), lot.Version)
}

func TestSoldToHouseSendsNoWinnerNotification(t *testing.T) {
	f := newFixture(t)
	f.seed("lot-1", models.LotStatusActive, 100)
	ctx := context.Background()

	house := newSession("s-house", models.HouseBidder, models.RoleBidder)
	f.connect(t, house, "lot-1")
	_, err := f.coord.PlaceBid(ctx, BidRequest{AuctionID: "lot-1", Amount: amount(150), BidType: models.BidTypeCompetitor})
	assert.NoError(t, err)

	lot, err := f.coord.PerformAction(ctx, adminCaller, "lot-1", models.ActionSold, "")
	assert.NoError(t, err)
	check.Equal(t, models.HouseBidder, lot.WinnerRef)
	check.Equal(t, 0, len(house.ofType(protocol.TypeWinnerNotification)))
}

func TestPassEndsWithoutWinner(t *testing.T) {
	f := newFixture(t)
	f.seed("lot-1", models.LotStatusActive, 100)
	ctx := context.Background()
	watcher := newSession("s1", "w", models.RoleObserver)
	f.connect(t, watcher, "lot-1")

	_, err := f.coord.PlaceBid(ctx, bid("lot-1", "alice", 150))
	assert.NoError(t, err)

	lot, err := f.coord.PerformAction(ctx, adminCaller, "lot-1", models.ActionPass, "")
	assert.NoError(t, err)
	check.Equal(t, models.LotStatusEnded, lot.Status)
	check.Equal(t, "", lot.WinnerRef)
	check.Nil(t, lot.WinnerBidTime)

	ended := watcher.ofType(protocol.TypeAuctionEnded)
	assert.Equal(t, 1, len(ended))
	check.Nil(t, decodeAs[protocol.AuctionEnded](t, ended[0]).WinnerRef)
}

func TestNonAdminCannotAct(t *testing.T) {
	f := newFixture(t)
	f.seed("lot-1", models.LotStatusActive, 100)
	ctx := context.Background()
	_, err := f.coord.PlaceBid(ctx, bid("lot-1", "alice", 150))
	assert.NoError(t, err)

	for _, role := range []models.Role{models.RoleBidder, models.RoleObserver} {
		caller := Caller{SessionID: "s", ParticipantRef: "mallory", Role: role}
		for _, action := range []models.ActionType{models.ActionSold, models.ActionRetract, models.ActionFairWarning, models.ActionNextLot} {
			_, err := f.coord.PerformAction(ctx, caller, "lot-1", action, "")
			check.True(t, errors.Is(err, ErrUnauthorized))
		}
		_, err := f.coord.StartLot(ctx, caller, "lot-1")
		check.True(t, errors.Is(err, ErrUnauthorized))
	}

	lot := f.lot(t, "lot-1")
	check.Equal(t, models.LotStatusActive, lot.Status)
	check.Equal(t, 1, len(lot.BidLog))
	check.Equal(t, 0, len(lot.History))
}

func TestUnknownActionIsRejected(t *testing.T) {
	f := newFixture(t)
	f.seed("lot-1", models.LotStatusActive, 100)

	_, err := f.coord.PerformAction(context.Background(), adminCaller, "lot-1", "EXPLODE", "")
	check.True(t, errors.Is(err, ErrInvalidAction))
	_, err = f.coord.PerformAction(context.Background(), adminCaller, "lot-1", models.ActionStart, "")
	check.True(t, errors.Is(err, ErrInvalidAction))
}

func TestAnnouncementsAppendHistory(t *testing.T) {
	f := newFixture(t)
	f.seed("lot-1", models.LotStatusActive, 100)
	ctx := context.Background()
	watcher := newSession("s1", "w", models.RoleObserver)
	f.connect(t, watcher, "lot-1")

	for _, action := range []models.ActionType{models.ActionFairWarning, models.ActionFinalCall, models.ActionReserveNotMet} {
		lot, err := f.coord.PerformAction(ctx, adminCaller, "lot-1", action, "")
		assert.NoError(t, err)
		check.Equal(t, models.LotStatusActive, lot.Status)
	}

	lot := f.lot(t, "lot-1")
	assert.Equal(t, 3, len(lot.History))
	check.Equal(t, models.ActionFairWarning, lot.History[0].ActionType)
	check.Equal(t, models.ActionFinalCall, lot.History[1].ActionType)
	check.Equal(t, models.ActionReserveNotMet, lot.History[2].ActionType)
	check.Equal(t, "auctioneer", lot.History[0].Sender)

	messages := watcher.ofType(protocol.TypeAuctionMessage)
	assert.Equal(t, 3, len(messages))
	check.Equal(t, "Final call", decodeAs[protocol.AuctionMessage](t, messages[1]).Message)
}

func TestAnnouncementsOnEndedLot(t *testing.T) {
	f := newFixture(t)
	f.seed("lot-1", models.LotStatusEnded, 100)
	ctx := context.Background()

	for _, action := range []models.ActionType{models.ActionFairWarning, models.ActionFinalCall, models.ActionReserveNotMet, models.ActionPass, models.ActionRetract} {
		_, err := f.coord.PerformAction(ctx, adminCaller, "lot-1", action, "")
		check.True(t, errors.Is(err, ErrAuctionNotActive))
	}

	lot, err := f.coord.PerformAction(ctx, adminCaller, "lot-1", models.ActionMessage, "  Thanks everyone  ")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(lot.History))
	check.Equal(t, "Thanks everyone", lot.History[0].Message)

	_, err = f.coord.PerformAction(ctx, adminCaller, "lot-1", models.ActionMessage, "   ")
	check.True(t, errors.Is(err, ErrInvalidMessage))
}

func TestRetractRestoresPreviousState(t *testing.T) {
	f := newFixture(t)
	f.seed("lot-1", models.LotStatusActive, 1000)
	f.seed("control", models.LotStatusActive, 1000)
	ctx := context.Background()
	watcher := newSession("s1", "w", models.RoleObserver)
	f.connect(t, watcher, "lot-1")

	_, err := f.coord.PlaceBid(ctx, bid("lot-1", "alice", 1100))
	assert.NoError(t, err)
	_, err = f.coord.PlaceBid(ctx, bid("control", "alice", 1100))
	assert.NoError(t, err)
	_, err = f.coord.PlaceBid(ctx, bid("lot-1", "bob", 1200))
	assert.NoError(t, err)

	lot, err := f.coord.PerformAction(ctx, adminCaller, "lot-1", models.ActionRetract, "")
	assert.NoError(t, err)
	control := f.lot(t, "control")

	check.Equal(t, control.CurrentBid.String(), lot.CurrentBid.String())
	check.Equal(t, control.CurrentBidderRef, lot.CurrentBidderRef)
	assert.Equal(t, len(control.BidLog), len(lot.BidLog))
	check.Equal(t, "alice", lot.BidLog[0].Bidder)
	check.Equal(t, "1100", lot.BidLog[0].BidAmount.String())

	assert.Equal(t, 1, len(lot.History))
	entry := lot.History[0]
	check.Equal(t, models.ActionRetract, entry.ActionType)
	assert.NotNil(t, entry.RetractedBid)
	check.Equal(t, "bob", entry.RetractedBid.Bidder)

	snapshots := watcher.ofType(protocol.TypeAuctionData)
	last := decodeAs[protocol.AuctionData](t, snapshots[len(snapshots)-1])
	check.Equal(t, "1100", last.CurrentBid.String())
	check.Equal(t, "alice", last.CurrentBidderRef)

	// After retracting to empty the lot falls back to the starting bid.
	lot, err = f.coord.PerformAction(ctx, adminCaller, "lot-1", models.ActionRetract, "")
	assert.NoError(t, err)
	check.Equal(t, "1000", lot.CurrentBid.String())
	check.Equal(t, "", lot.CurrentBidderRef)
	check.Equal(t, 0, len(lot.BidLog))

	// Bidding resumes from the restored current bid.
	_, err = f.coord.PlaceBid(ctx, bid("lot-1", "carol", 1100))
	assert.NoError(t, err)
}

func TestRetractOnEmptyLogIsNoop(t *testing.T) {
	f := newFixture(t)
	f.seed("lot-1", models.LotStatusActive, 1000)

	lot, err := f.coord.PerformAction(context.Background(), adminCaller, "lot-1", models.ActionRetract, "")
	assert.NoError(t, err)
	check.Equal(t, uint64(0), lot.Version)
	check.Equal(t, 0, len(lot.History))
	check.Equal(t, "1000", lot.CurrentBid.String())
}

func TestNextLotEmptiesRoomWithoutChangingLot(t *testing.T) {
	f := newFixture(t)
	f.seed("lot-1", models.LotStatusActive, 100)
	ctx := context.Background()
	a := newSession("s1", "alice", models.RoleBidder)
	b := newSession("s2", "bob", models.RoleBidder)
	f.connect(t, a, "lot-1")
	f.connect(t, b, "lot-1")

	_, err := f.coord.PlaceBid(ctx, bid("lot-1", "alice", 150))
	assert.NoError(t, err)
	before := f.lot(t, "lot-1")

	lot, err := f.coord.PerformAction(ctx, adminCaller, "lot-1", models.ActionNextLot, "")
	assert.NoError(t, err)
	check.Equal(t, before.Version, lot.Version)
	check.Equal(t, before.Status, lot.Status)

	check.Equal(t, 0, f.rooms.WatcherCount("lot-1"))
	for _, s := range []*fakeSession{a, b} {
		types := s.types()
		check.Equal(t, protocol.TypeAuctionMessage, types[len(types)-2])
		check.Equal(t, protocol.TypeLeft, types[len(types)-1])
	}

	_, err = f.coord.SubmitBid(ctx, a.caller(), "lot-1", decimalOf("200"), "")
	check.True(t, errors.Is(err, ErrNotJoined))
}
