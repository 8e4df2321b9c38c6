package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/peterldowns/testy/check"
)

func TestCode(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{ErrAuctionNotFound, "AUCTION_NOT_FOUND"},
		{ErrAuctionNotActive, "AUCTION_NOT_ACTIVE"},
		{ErrNotLiveAuction, "NOT_LIVE_AUCTION"},
		{&BidTooLowError{Amount: amount(1), Minimum: amount(2)}, "BID_TOO_LOW"},
		{ErrInvalidAmount, "INVALID_BID"},
		{ErrInvalidBidType, "INVALID_BID"},
		{fmt.Errorf("%w: observers cannot post messages", ErrUnauthorized), "UNAUTHORIZED"},
		{ErrNoBids, "NO_BIDS"},
		{ErrInvalidTransition, "INVALID_ACTION"},
		{ErrNotJoined, "NOT_JOINED"},
		{ErrInvalidMessage, "INVALID_MESSAGE"},
		{ErrUnavailable, "UNAVAILABLE"},
		{errors.New("boom"), "INTERNAL"},
	}
	for _, tc := range cases {
		check.Equal(t, tc.code, Code(tc.err))
	}
}
