package models

import "time"

// ActionType is an auctioneer action or lifecycle transition
type ActionType string

// Admin verbs
const (
	ActionFairWarning   ActionType = "FAIR_WARNING"
	ActionFinalCall     ActionType = "FINAL_CALL"
	ActionReserveNotMet ActionType = "RESERVE_NOT_MET"
	ActionSold          ActionType = "SOLD"
	ActionPass          ActionType = "PASS"
	ActionNextLot       ActionType = "NEXT_LOT"
	ActionRetract       ActionType = "RETRACT"
	ActionMessage       ActionType = "MESSAGE"
)

// Lifecycle transitions outside the admin verbs
const (
	ActionStart  ActionType = "START"
	ActionReopen ActionType = "REOPEN"
)

// Valid reports whether a is one of the admin verbs
func (a ActionType) Valid() bool {
	switch a {
	case ActionFairWarning, ActionFinalCall, ActionReserveNotMet, ActionSold,
		ActionPass, ActionNextLot, ActionRetract, ActionMessage:
		return true
	}
	return false
}

// EntryKind classifies a history entry
type EntryKind string

// EntryKind constants
const (
	EntryKindAction    EntryKind = "action"
	EntryKindChat      EntryKind = "chat"
	EntryKindLifecycle EntryKind = "lifecycle"
)

// HistoryEntry is a non-bid item in the lot's chronological feed
type HistoryEntry struct {
	ID           string     `json:"id"`
	Kind         EntryKind  `json:"kind"`
	ActionType   ActionType `json:"actionType,omitempty"`
	Message      string     `json:"message,omitempty"`
	Sender       string     `json:"sender"`
	Timestamp    time.Time  `json:"timestamp"`
	RetractedBid *Bid       `json:"retractedBid,omitempty"`
}

func (e HistoryEntry) clone() HistoryEntry {
	if e.RetractedBid != nil {
		b := *e.RetractedBid
		e.RetractedBid = &b
	}
	return e
}
