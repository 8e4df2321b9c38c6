package store

import (
	"context"

	"github.com/aaronwang/live-auction/internal/models"
)

// LoaderFunc adapts a function to Loader
type LoaderFunc func(ctx context.Context, id string) (*models.AuctionLot, error)

// LoadLot implements Loader
func (f LoaderFunc) LoadLot(ctx context.Context, id string) (*models.AuctionLot, error) {
	return f(ctx, id)
}

// Newest reads from the record store and every cache and keeps the lot
// with the highest version. Saves are asynchronous, so a cache may be ahead
// of the record store after a restart. Only record store errors fail the load.
func Newest(record Loader, caches ...Loader) Loader {
	return LoaderFunc(func(ctx context.Context, id string) (*models.AuctionLot, error) {
		best, err := record.LoadLot(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, cache := range caches {
			lot, err := cache.LoadLot(ctx, id)
			if err != nil || lot == nil {
				continue
			}
			if best == nil || lot.Version > best.Version {
				best = lot
			}
		}
		return best, nil
	})
}
