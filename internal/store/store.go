// Package store holds the authoritative in-memory auction state.
//
// Every lot has its own one-slot lock. Mutations run on a clone of the
// committed lot inside that lock and are swapped in only when they succeed,
// so readers always see a complete committed version and a failed mutation
// changes nothing. Different lots never contend.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aaronwang/live-auction/internal/models"
)

var (
	// ErrNotFound is returned when neither memory nor the record store knows the lot
	ErrNotFound = errors.New("auction not found")
	// ErrUnavailable is returned when the lot cannot be loaded or locked in time
	ErrUnavailable = errors.New("auction state unavailable")
)

// Loader reads a lot from the external record store.
// It returns (nil, nil) when the lot does not exist.
type Loader interface {
	LoadLot(ctx context.Context, id string) (*models.AuctionLot, error)
}

// MutateFunc changes a working copy of the lot. Returning an error discards the copy.
type MutateFunc func(lot *models.AuctionLot) error

// CommitFunc runs after a successful mutation while the lot is still locked.
// It must not block: enqueue work, never perform I/O.
type CommitFunc func(committed *models.AuctionLot)

type entry struct {
	sem chan struct{}
	lot atomic.Pointer[models.AuctionLot]
}

func newEntry(lot *models.AuctionLot) *entry {
	e := &entry{sem: make(chan struct{}, 1)}
	e.lot.Store(lot)
	return e
}

func (e *entry) lock(ctx context.Context, timeout time.Duration) error {
	select {
	case e.sem <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("%w: lock wait exceeded %s", ErrUnavailable, timeout)
	}
}

func (e *entry) unlock() {
	<-e.sem
}

// Store is the Auction State Store
type Store struct {
	mu    sync.RWMutex
	lots  map[string]*entry
	loads singleflight.Group

	loader      Loader
	lockTimeout time.Duration
	loadTimeout time.Duration
	now         func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithLoader sets the record store used on cache misses
func WithLoader(loader Loader) Option {
	return func(s *Store) { s.loader = loader }
}

// WithLockTimeout bounds how long a request waits for a lot's lock
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithLoadTimeout bounds a cold load from the record store
func WithLoadTimeout(d time.Duration) Option {
	return func(s *Store) { s.loadTimeout = d }
}

// WithClock overrides time.Now for commit timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		lots:        make(map[string]*entry),
		lockTimeout: 2 * time.Second,
		loadTimeout: 3 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put seeds or replaces a lot. Intended for startup and tests; live
// mutations must go through Update.
func (s *Store) Put(lot *models.AuctionLot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lots[lot.ID] = newEntry(lot.Clone())
}

// Seed adds lot only if neither the store nor its loader knows the id.
// It reports whether the lot was added; a persisted lot always wins.
func (s *Store) Seed(ctx context.Context, lot *models.AuctionLot) (bool, error) {
	_, err := s.entry(ctx, lot.ID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lots[lot.ID]; ok {
		return false, nil
	}
	s.lots[lot.ID] = newEntry(lot.Clone())
	return true, nil
}

// Get returns a copy of the committed lot
func (s *Store) Get(ctx context.Context, id string) (*models.AuctionLot, error) {
	e, err := s.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.lot.Load().Clone(), nil
}

// Snapshot is Get under another name: the full current state for resync.
func (s *Store) Snapshot(ctx context.Context, id string) (*models.AuctionLot, error) {
	return s.Get(ctx, id)
}

// Update serializes mutate against every other Update and View of the same lot.
// On success the version is bumped, onCommit (if any) runs under the lock,
// and a copy of the committed lot is returned.
func (s *Store) Update(ctx context.Context, id string, mutate MutateFunc, onCommit CommitFunc) (*models.AuctionLot, error) {
	e, err := s.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.lock(ctx, s.lockTimeout); err != nil {
		return nil, err
	}
	defer e.unlock()

	next := e.lot.Load().Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Version++
	next.UpdatedAt = s.now().UTC()
	e.lot.Store(next)

	committed := next.Clone()
	if onCommit != nil {
		onCommit(committed)
	}
	return committed, nil
}

// View runs fn with a copy of the lot while holding its lock, ordering fn
// against every mutation of that lot.
func (s *Store) View(ctx context.Context, id string, fn func(lot *models.AuctionLot) error) error {
	e, err := s.entry(ctx, id)
	if err != nil {
		return err
	}
	if err := e.lock(ctx, s.lockTimeout); err != nil {
		return err
	}
	defer e.unlock()

	return fn(e.lot.Load().Clone())
}

func (s *Store) entry(ctx context.Context, id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.lots[id]
	s.mu.RUnlock()
	if ok {
		return e, nil
	}
	if s.loader == nil {
		return nil, ErrNotFound
	}

	v, err, _ := s.loads.Do(id, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()

		lot, err := s.loader.LoadLot(loadCtx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: load %s: %v", ErrUnavailable, id, err)
		}
		if lot == nil {
			return nil, ErrNotFound
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.lots[id]; ok {
			return existing, nil
		}
		e := newEntry(lot.Clone())
		s.lots[id] = e
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}
