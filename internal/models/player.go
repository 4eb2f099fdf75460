package models

import "github.com/google/uuid"

// Player is one of the (at most two) active participants in a room.
// Address is the stable wallet identity; ConnID is the transient connection
// handle and is reassigned when the player reconnects.
type Player struct {
	Address     string    `json:"address"`
	Nickname    string    `json:"nickname"`
	ConnID      uuid.UUID `json:"-"`
	IsReady     bool      `json:"isReady"`
	StakeAmount uint64    `json:"stakeAmount"`
}

// Spectator watches a match and may record a bet on one of the players.
// Bets are informational only; they are never settled by this service.
type Spectator struct {
	Address   string    `json:"address"`
	Nickname  string    `json:"nickname"`
	ConnID    uuid.UUID `json:"-"`
	BetOn     string    `json:"betOn,omitempty"`
	BetAmount uint64    `json:"betAmount"`
}
