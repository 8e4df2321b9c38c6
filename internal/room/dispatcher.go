package room

// BroadcastToRoom enqueues payload on every session in the auction's room
// and returns how many accepted it. Sessions that are not connected at
// this moment get nothing; reconnecting clients resync from a snapshot.
func (r *Registry) BroadcastToRoom(auctionID string, payload []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, s := range r.rooms[auctionID] {
		if s.Send(payload) {
			delivered++
			continue
		}
		// The session closes itself on overflow; Detach follows from its read loop.
		r.logger.Warn("dropping slow session", "session", s.ID(), "auction", auctionID)
	}
	return delivered
}

// NotifyParticipant enqueues payload on every connected session of the
// participant, in any room. It returns 0 when the participant is offline.
func (r *Registry) NotifyParticipant(participantRef string, payload []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, s := range r.byParticipant[participantRef] {
		if s.Send(payload) {
			delivered++
		}
	}
	return delivered
}
