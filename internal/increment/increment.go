// Package increment holds the bid increment breakpoint table.
package increment

import "github.com/shopspring/decimal"

type breakpoint struct {
	floor     decimal.Decimal
	increment decimal.Decimal
}

func bp(floor, increment int64) breakpoint {
	return breakpoint{floor: decimal.NewFromInt(floor), increment: decimal.NewFromInt(increment)}
}

// Thresholds are inclusive lower bounds, highest first.
var table = []breakpoint{
	bp(1_000_000, 50_000),
	bp(500_000, 25_000),
	bp(250_000, 10_000),
	bp(100_000, 5_000),
	bp(50_000, 2_500),
	bp(25_000, 1_000),
	bp(10_000, 500),
	bp(5_000, 250),
	bp(1_000, 100),
	bp(100, 50),
	bp(50, 10),
	bp(25, 5),
}

var minimumIncrement = decimal.NewFromInt(1)

// RequiredIncrement returns the minimum raise over currentBid
func RequiredIncrement(currentBid decimal.Decimal) decimal.Decimal {
	for _, b := range table {
		if currentBid.GreaterThanOrEqual(b.floor) {
			return b.increment
		}
	}
	return minimumIncrement
}

// MinimumNextBid is currentBid plus its required increment
func MinimumNextBid(currentBid decimal.Decimal) decimal.Decimal {
	return currentBid.Add(RequiredIncrement(currentBid))
}
