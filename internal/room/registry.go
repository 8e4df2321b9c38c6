// Package room tracks connected sessions per auction and fans events out to them.
package room

import (
	"log/slog"
	"sync"

	"github.com/aaronwang/live-auction/internal/models"
)

// Session is one client connection as seen by the registry.
// Send must never block: it enqueues the frame or reports false when the
// session's buffer is full or closed, in which case the session is
// expected to tear itself down.
type Session interface {
	ID() string
	ParticipantRef() string
	Role() models.Role
	Send(payload []byte) bool
}

// Registry is the Auction Room Registry. It counts sessions, not
// participants: two tabs of the same bidder are two watchers.
type Registry struct {
	mu            sync.RWMutex
	connected     map[string]Session            // sessionID -> session
	rooms         map[string]map[string]Session // auctionID -> sessionID -> session
	sessionRoom   map[string]string             // sessionID -> auctionID
	byParticipant map[string]map[string]Session // participantRef -> sessionID -> session

	logger *slog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		connected:     make(map[string]Session),
		rooms:         make(map[string]map[string]Session),
		sessionRoom:   make(map[string]string),
		byParticipant: make(map[string]map[string]Session),
		logger:        logger,
	}
}

// Attach registers a connected session so it can receive targeted notifications
func (r *Registry) Attach(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connected[s.ID()] = s
	if ref := s.ParticipantRef(); ref != "" {
		set, ok := r.byParticipant[ref]
		if !ok {
			set = make(map[string]Session)
			r.byParticipant[ref] = set
		}
		set[s.ID()] = s
	}
}

// Detach forgets a session entirely. It returns the room the session was
// in, if any, and that room's new watcher count.
func (r *Registry) Detach(sessionID string) (auctionID string, watchers int, wasInRoom bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.connected[sessionID]; ok {
		delete(r.connected, sessionID)
		if set, ok := r.byParticipant[s.ParticipantRef()]; ok {
			delete(set, sessionID)
			if len(set) == 0 {
				delete(r.byParticipant, s.ParticipantRef())
			}
		}
	}

	auctionID, wasInRoom = r.sessionRoom[sessionID]
	if !wasInRoom {
		return "", 0, false
	}
	watchers = r.removeFromRoomLocked(auctionID, sessionID)
	return auctionID, watchers, true
}

// Join puts the session into the auction's room. A session is in at most
// one room, so joining moves it out of any previous room, which is returned.
func (r *Registry) Join(auctionID string, s Session) (watchers int, previous string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.sessionRoom[s.ID()]; ok && prev != auctionID {
		r.removeFromRoomLocked(prev, s.ID())
		previous = prev
	}

	members, ok := r.rooms[auctionID]
	if !ok {
		members = make(map[string]Session)
		r.rooms[auctionID] = members
	}
	members[s.ID()] = s
	r.sessionRoom[s.ID()] = auctionID

	r.logger.Debug("session joined room", "session", s.ID(), "auction", auctionID, "watchers", len(members))
	return len(members), previous
}

// Leave removes the session from the auction's room
func (r *Registry) Leave(auctionID, sessionID string) (watchers int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessionRoom[sessionID] != auctionID {
		return len(r.rooms[auctionID]), false
	}
	return r.removeFromRoomLocked(auctionID, sessionID), true
}

// InRoom reports whether the session is currently in the auction's room
func (r *Registry) InRoom(auctionID, sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessionRoom[sessionID] == auctionID
}

// RoomOf returns the room a session is in
func (r *Registry) RoomOf(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	auctionID, ok := r.sessionRoom[sessionID]
	return auctionID, ok
}

// WatcherCount returns the number of sessions in the auction's room
func (r *Registry) WatcherCount(auctionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[auctionID])
}

// SessionsOf returns the sessions currently in the auction's room
func (r *Registry) SessionsOf(auctionID string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[auctionID]
	out := make([]Session, 0, len(members))
	for _, s := range members {
		out = append(out, s)
	}
	return out
}

// CloseRoom empties the auction's room and returns the sessions that were
// in it. The sessions stay connected and may join another room.
func (r *Registry) CloseRoom(auctionID string) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[auctionID]
	out := make([]Session, 0, len(members))
	for id, s := range members {
		delete(r.sessionRoom, id)
		out = append(out, s)
	}
	delete(r.rooms, auctionID)
	return out
}

func (r *Registry) removeFromRoomLocked(auctionID, sessionID string) int {
	delete(r.sessionRoom, sessionID)
	members, ok := r.rooms[auctionID]
	if !ok {
		return 0
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(r.rooms, auctionID)
		return 0
	}
	return len(members)
}
