package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/aaronwang/live-auction/internal/models"
	"github.com/aaronwang/live-auction/internal/protocol"
)

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	f.seed("lot-1", models.LotStatusActive, 100)
	ctx := context.Background()

	bidder := newSession("s1", "alice", models.RoleBidder)
	observer := newSession("s2", "olga", models.RoleObserver)
	admin := newSession("s3", "auctioneer", models.RoleAdmin)
	f.connect(t, bidder, "lot-1")
	f.connect(t, observer, "lot-1")
	f.connect(t, admin, "lot-1")

	lot, err := f.coord.SendMessage(ctx, bidder.caller(), "lot-1", " is the frame original? ")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(lot.History))
	check.Equal(t, models.EntryKindChat, lot.History[0].Kind)
	check.Equal(t, "alice", lot.History[0].Sender)
	check.Equal(t, "is the frame original?", lot.History[0].Message)

	lot, err = f.coord.SendMessage(ctx, admin.caller(), "lot-1", "Yes, it is.")
	assert.NoError(t, err)
	assert.Equal(t, 2, len(lot.History))
	check.Equal(t, models.EntryKindAction, lot.History[1].Kind)
	check.Equal(t, models.ActionMessage, lot.History[1].ActionType)

	messages := observer.ofType(protocol.TypeAuctionMessage)
	assert.Equal(t, 2, len(messages))
	check.Equal(t, "alice", decodeAs[protocol.AuctionMessage](t, messages[0]).Sender)
	check.Equal(t, "Yes, it is.", decodeAs[protocol.AuctionMessage](t, messages[1]).Message)
}

func TestSendMessageRejections(t *testing.T) {
	f := newFixture(t)
	f.seed("lot-1", models.LotStatusActive, 100)
	ctx := context.Background()

	bidder := newSession("s1", "alice", models.RoleBidder)
	observer := newSession("s2", "olga", models.RoleObserver)
	outsider := newSession("s3", "bob", models.RoleBidder)
	f.connect(t, bidder, "lot-1")
	f.connect(t, observer, "lot-1")
	f.coord.Connect(outsider)

	_, err := f.coord.SendMessage(ctx, observer.caller(), "lot-1", "hello")
	check.True(t, errors.Is(err, ErrUnauthorized))

	_, err = f.coord.SendMessage(ctx, outsider.caller(), "lot-1", "hello")
	check.True(t, errors.Is(err, ErrNotJoined))

	for _, text := range []string{"", "   ", strings.Repeat("x", 501)} {
		_, err = f.coord.SendMessage(ctx, bidder.caller(), "lot-1", text)
		check.True(t, errors.Is(err, ErrInvalidMessage))
	}

	_, err = f.coord.SendMessage(ctx, bidder.caller(), "lot-1", strings.Repeat("é", 500))
	check.NoError(t, err)

	check.Equal(t, 1, len(f.lot(t, "lot-1").History))
}
