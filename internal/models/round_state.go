package models

// ClientState is the opaque progress snapshot a client reports while playing.
// The server never recomputes any of it; it only relays snapshots to the
// opponent and watches TowerHP for the loss condition.
type ClientState struct {
	Wave       int     `json:"wave"`
	TowerHP    int     `json:"towerHp"`
	MaxTowerHP int     `json:"maxTowerHp"`
	Coins      int     `json:"coins"`
	GameTime   float64 `json:"gameTime"`
}

// RoundState is the per-player, per-room record the coordinator keeps between
// wave boundaries. Wave is monotonically non-decreasing. TerminalEventSent
// latches once this player's loss has been announced so repeated zero-HP
// reports cannot re-trigger it.
type RoundState struct {
	Wave              int     `json:"wave"`
	TowerHP           int     `json:"towerHp"`
	MaxTowerHP        int     `json:"maxTowerHp"`
	Coins             int     `json:"coins"`
	GameTime          float64 `json:"gameTime"`
	ReadyForNextWave  bool    `json:"readyForNextWave"`
	TerminalEventSent bool    `json:"-"`
}

// Apply overwrites the progress fields from a client snapshot, preserving the
// coordinator-owned readiness and terminal flags.
func (s *RoundState) Apply(cs ClientState) {
	s.Wave = cs.Wave
	s.TowerHP = cs.TowerHP
	s.MaxTowerHP = cs.MaxTowerHP
	s.Coins = cs.Coins
	s.GameTime = cs.GameTime
}
