package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/aaronwang/live-auction/internal/identity"
	"github.com/aaronwang/live-auction/internal/models"
	"github.com/aaronwang/live-auction/internal/protocol"
	"github.com/aaronwang/live-auction/internal/room"
	"github.com/aaronwang/live-auction/internal/service"
	"github.com/aaronwang/live-auction/internal/store"
)

type testServer struct {
	*httptest.Server
	coord *service.Coordinator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	resolver, err := identity.ParseStatic([]string{
		"alice-token=alice:bidder",
		"bob-token=bob:bidder",
		"olga-token=olga:observer",
		"admin-token=auctioneer:admin",
	})
	assert.NoError(t, err)

	st := store.New()
	lot := models.NewLot("lot-1", models.AuctionTypeLive, decimal.NewFromInt(1000))
	lot.Status = models.LotStatusActive
	st.Put(lot)

	coord := service.NewCoordinator(st, room.NewRegistry(nil))
	srv := httptest.NewServer(NewHandler(coord, resolver, nil))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, coord: coord}
}

func (s *testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	data, err := protocol.Encode(msgType, payload)
	assert.NoError(t, err)
	assert.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// next reads frames until one of the wanted type arrives
func next(t *testing.T, conn *websocket.Conn, msgType string) *protocol.Envelope {
	t.Helper()
	assert.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		assert.NoError(t, err)
		env, err := protocol.Decode(data)
		assert.NoError(t, err)
		if env.Type == msgType {
			return env
		}
	}
}

func first(t *testing.T, conn *websocket.Conn) *protocol.Envelope {
	t.Helper()
	assert.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	assert.NoError(t, err)
	env, err := protocol.Decode(data)
	assert.NoError(t, err)
	return env
}

func join(t *testing.T, conn *websocket.Conn, role models.Role) protocol.Joined {
	t.Helper()
	send(t, conn, protocol.TypeJoinAuction, protocol.JoinAuction{AuctionID: "lot-1", Role: role})
	env := first(t, conn)
	assert.Equal(t, protocol.TypeJoined, env.Type)
	var joined protocol.Joined
	assert.NoError(t, env.DecodePayload(&joined))
	check.Equal(t, protocol.TypeAuctionData, first(t, conn).Type)
	return joined
}

func TestRejectsUnknownToken(t *testing.T) {
	srv := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	check.Error(t, err)
	assert.NotNil(t, resp)
	check.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBearerToken(t *testing.T) {
	srv := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	header := http.Header{}
	header.Set("Authorization", "Bearer alice-token")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	assert.NoError(t, err)
	defer conn.Close()

	joined := join(t, conn, "")
	check.Equal(t, models.RoleBidder, joined.Role)
}

func TestBiddingOverWebsocket(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.dial(t, "alice-token")
	bob := srv.dial(t, "bob-token")
	join(t, alice, models.RoleBidder)
	join(t, bob, models.RoleBidder)

	send(t, alice, protocol.TypePlaceBid, map[string]interface{}{"auctionId": "lot-1", "bidAmount": 1050})
	env := next(t, alice, protocol.TypeError)
	var reply protocol.Error
	assert.NoError(t, env.DecodePayload(&reply))
	check.Equal(t, "BID_TOO_LOW", reply.Code)
	check.Equal(t, protocol.TypePlaceBid, reply.RequestType)
	assert.NotNil(t, reply.MinimumBid)
	check.Equal(t, "1100", reply.MinimumBid.String())

	send(t, alice, protocol.TypePlaceBid, map[string]interface{}{"auctionId": "lot-1", "bidAmount": "1100"})
	var update protocol.BidUpdate
	assert.NoError(t, next(t, bob, protocol.TypeBidUpdate).DecodePayload(&update))
	check.Equal(t, "1100", update.BidAmount.String())
	check.Equal(t, "alice", update.BidderRef)

	send(t, bob, protocol.TypePlaceBid, protocol.PlaceBid{AuctionID: "lot-1", BidAmount: decimal.NewFromInt(1200)})
	var outbid protocol.OutbidNotification
	assert.NoError(t, next(t, alice, protocol.TypeOutbidNotification).DecodePayload(&outbid))
	check.Equal(t, "1200", outbid.CurrentBid.String())
}

func TestObserverCannotBid(t *testing.T) {
	srv := newTestServer(t)
	olga := srv.dial(t, "olga-token")
	joined := join(t, olga, models.RoleAdmin)
	check.Equal(t, models.RoleObserver, joined.Role)

	send(t, olga, protocol.TypePlaceBid, protocol.PlaceBid{AuctionID: "lot-1", BidAmount: decimal.NewFromInt(1100)})
	var reply protocol.Error
	assert.NoError(t, next(t, olga, protocol.TypeError).DecodePayload(&reply))
	check.Equal(t, "UNAUTHORIZED", reply.Code)
}

func TestAdminDowngradedToBidder(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.dial(t, "admin-token")
	joined := join(t, admin, models.RoleBidder)
	check.Equal(t, models.RoleBidder, joined.Role)

	send(t, admin, protocol.TypeAdminAction, protocol.AdminAction{AuctionID: "lot-1", ActionType: models.ActionFairWarning})
	var reply protocol.Error
	assert.NoError(t, next(t, admin, protocol.TypeError).DecodePayload(&reply))
	check.Equal(t, "UNAUTHORIZED", reply.Code)
}

func TestFailedJoinKeepsRole(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.dial(t, "admin-token")
	check.Equal(t, models.RoleAdmin, join(t, admin, "").Role)

	send(t, admin, protocol.TypeJoinAuction, protocol.JoinAuction{AuctionID: "missing", Role: models.RoleObserver})
	var reply protocol.Error
	assert.NoError(t, next(t, admin, protocol.TypeError).DecodePayload(&reply))
	check.Equal(t, "AUCTION_NOT_FOUND", reply.Code)

	send(t, admin, protocol.TypeAdminAction, protocol.AdminAction{AuctionID: "lot-1", ActionType: models.ActionFairWarning})
	var msg protocol.AuctionMessage
	assert.NoError(t, next(t, admin, protocol.TypeAuctionMessage).DecodePayload(&msg))
	check.Equal(t, models.ActionFairWarning, msg.ActionType)
}

func TestAdminActionReachesRoom(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.dial(t, "admin-token")
	alice := srv.dial(t, "alice-token")
	join(t, admin, "")
	join(t, alice, "")

	send(t, admin, protocol.TypeAdminAction, protocol.AdminAction{AuctionID: "lot-1", ActionType: models.ActionFinalCall})
	var msg protocol.AuctionMessage
	assert.NoError(t, next(t, alice, protocol.TypeAuctionMessage).DecodePayload(&msg))
	check.Equal(t, models.ActionFinalCall, msg.ActionType)
	check.Equal(t, "auctioneer", msg.Sender)
}

func TestMalformedFrames(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.dial(t, "alice-token")

	assert.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))
	var reply protocol.Error
	assert.NoError(t, next(t, alice, protocol.TypeError).DecodePayload(&reply))
	check.Equal(t, "BAD_REQUEST", reply.Code)

	send(t, alice, "teleport", protocol.AuctionRef{AuctionID: "lot-1"})
	assert.NoError(t, next(t, alice, protocol.TypeError).DecodePayload(&reply))
	check.Equal(t, "BAD_REQUEST", reply.Code)

	send(t, alice, protocol.TypePlaceBid, protocol.PlaceBid{AuctionID: "lot-1", BidAmount: decimal.NewFromInt(1100)})
	assert.NoError(t, next(t, alice, protocol.TypeError).DecodePayload(&reply))
	check.Equal(t, "NOT_JOINED", reply.Code)
}

func TestDisconnectLeavesRoom(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.dial(t, "alice-token")
	bob := srv.dial(t, "bob-token")
	join(t, alice, "")
	join(t, bob, "")
	check.Equal(t, 2, srv.coord.Rooms().WatcherCount("lot-1"))

	var update protocol.WatcherUpdate
	for update.WatcherCount != 2 {
		assert.NoError(t, next(t, alice, protocol.TypeWatcherUpdate).DecodePayload(&update))
	}

	bob.Close()
	for update.WatcherCount != 1 {
		assert.NoError(t, next(t, alice, protocol.TypeWatcherUpdate).DecodePayload(&update))
	}
	check.Equal(t, 1, srv.coord.Rooms().WatcherCount("lot-1"))
}

func TestErrorReply(t *testing.T) {
	reply := errorReply(protocol.TypePlaceBid, "lot-1", &service.BidTooLowError{Amount: decimal.NewFromInt(5), Minimum: decimal.NewFromInt(10)})
	check.Equal(t, "BID_TOO_LOW", reply.Code)
	assert.NotNil(t, reply.MinimumBid)
	check.Equal(t, "10", reply.MinimumBid.String())

	reply = errorReply("", "", errBadRequest)
	check.Equal(t, "BAD_REQUEST", reply.Code)
	check.Nil(t, reply.MinimumBid)

	reply = errorReply(protocol.TypeJoinAuction, "lot-1", http.ErrHandlerTimeout)
	check.Equal(t, "INTERNAL", reply.Code)
	check.Equal(t, "internal error", reply.Message)
}

func TestTokenFrom(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil)
	check.Equal(t, "abc", tokenFrom(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer xyz")
	check.Equal(t, "xyz", tokenFrom(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Basic xyz")
	check.Equal(t, "", tokenFrom(r))
}
