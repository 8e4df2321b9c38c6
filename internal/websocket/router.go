package websocket

import (
	"context"
	"errors"
	"fmt"

	"github.com/aaronwang/live-auction/internal/protocol"
	"github.com/aaronwang/live-auction/internal/service"
)

// errBadRequest covers frames that cannot be routed at all
var errBadRequest = errors.New("bad request")

func (h *Handler) handleMessage(ctx context.Context, c *Client, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		h.replyError(c, "", "", fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	auctionID, err := h.route(ctx, c, env)
	if err != nil {
		h.replyError(c, env.Type, auctionID, err)
	}
}

// route dispatches one inbound event. Successful requests are answered by
// the room events they cause, so only the auction id is returned.
func (h *Handler) route(ctx context.Context, c *Client, env *protocol.Envelope) (string, error) {
	caller := service.Caller{SessionID: c.ID(), ParticipantRef: c.ParticipantRef(), Role: c.Role()}

	switch env.Type {
	case protocol.TypeJoinAuction:
		var req protocol.JoinAuction
		if err := env.DecodePayload(&req); err != nil {
			return "", fmt.Errorf("%w: %v", errBadRequest, err)
		}
		if req.ParticipantRef != "" && req.ParticipantRef != c.ParticipantRef() {
			h.logger.Warn("join with foreign participant", "session", c.ID(), "participant", c.ParticipantRef(), "claimed", req.ParticipantRef)
			return req.AuctionID, service.ErrUnauthorized
		}
		// the role only changes with a successful join
		previous := c.useRole(req.Role)
		if _, err := h.coord.Join(ctx, c, req.AuctionID); err != nil {
			c.restoreRole(previous)
			return req.AuctionID, err
		}
		return req.AuctionID, nil

	case protocol.TypeLeaveAuction:
		var req protocol.AuctionRef
		if err := env.DecodePayload(&req); err != nil {
			return "", fmt.Errorf("%w: %v", errBadRequest, err)
		}
		return req.AuctionID, h.coord.Leave(ctx, c, req.AuctionID)

	case protocol.TypeGetAuctionData:
		var req protocol.AuctionRef
		if err := env.DecodePayload(&req); err != nil {
			return "", fmt.Errorf("%w: %v", errBadRequest, err)
		}
		return req.AuctionID, h.coord.Resync(ctx, c, req.AuctionID)

	case protocol.TypePlaceBid:
		var req protocol.PlaceBid
		if err := env.DecodePayload(&req); err != nil {
			return "", fmt.Errorf("%w: %v", service.ErrInvalidAmount, err)
		}
		_, err := h.coord.SubmitBid(ctx, caller, req.AuctionID, req.BidAmount, req.BidType)
		return req.AuctionID, err

	case protocol.TypeAdminAction:
		var req protocol.AdminAction
		if err := env.DecodePayload(&req); err != nil {
			return "", fmt.Errorf("%w: %v", errBadRequest, err)
		}
		_, err := h.coord.PerformAction(ctx, caller, req.AuctionID, req.ActionType, req.Payload)
		return req.AuctionID, err

	case protocol.TypeSendMessage:
		var req protocol.SendMessage
		if err := env.DecodePayload(&req); err != nil {
			return "", fmt.Errorf("%w: %v", errBadRequest, err)
		}
		_, err := h.coord.SendMessage(ctx, caller, req.AuctionID, req.Text)
		return req.AuctionID, err

	case protocol.TypeStartAuction, protocol.TypeReopenAuction:
		var req protocol.AuctionRef
		if err := env.DecodePayload(&req); err != nil {
			return "", fmt.Errorf("%w: %v", errBadRequest, err)
		}
		var err error
		if env.Type == protocol.TypeStartAuction {
			_, err = h.coord.StartLot(ctx, caller, req.AuctionID)
		} else {
			_, err = h.coord.ReopenLot(ctx, caller, req.AuctionID)
		}
		return req.AuctionID, err
	}

	return "", fmt.Errorf("%w: unknown message type %q", errBadRequest, env.Type)
}

// replyError answers the requester only
func (h *Handler) replyError(c *Client, requestType, auctionID string, err error) {
	reply := errorReply(requestType, auctionID, err)
	if reply.Code == "INTERNAL" {
		h.logger.Error("request failed", "type", requestType, "auction", auctionID, "session", c.ID(), "error", err)
	}

	data, encErr := protocol.Encode(protocol.TypeError, reply)
	if encErr != nil {
		h.logger.Error("failed to encode error reply", "error", encErr)
		return
	}
	c.Send(data)
}

func errorReply(requestType, auctionID string, err error) protocol.Error {
	reply := protocol.Error{
		Message:     err.Error(),
		Code:        service.Code(err),
		RequestType: requestType,
		AuctionID:   auctionID,
	}
	if errors.Is(err, errBadRequest) {
		reply.Code = "BAD_REQUEST"
	}

	var tooLow *service.BidTooLowError
	if errors.As(err, &tooLow) {
		minimum := tooLow.Minimum
		reply.MinimumBid = &minimum
	}

	if reply.Code == "INTERNAL" {
		reply.Message = "internal error"
	}
	return reply
}
