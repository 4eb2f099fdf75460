package models

// ChallengeRecord is the pending challenge between the two players of a room.
// It is consumed by countdown start and cleared on room teardown.
type ChallengeRecord struct {
	Challenger string `json:"challenger"`
	Challenged string `json:"challenged"`
	Accepted   bool   `json:"accepted"`
}

// Receipt is the result of the external settlement call.
type Receipt struct {
	Success   bool   `json:"success"`
	Amount    uint64 `json:"amount"`
	Reference string `json:"reference"`
}

// Outcome is the terminal result of a match. It is set exactly once per room.
type Outcome struct {
	Winner         string             `json:"winner"`
	Loser          string             `json:"loser"`
	WinnerNickname string             `json:"winnerNickname"`
	PlayerWaves    map[string]int     `json:"playerWaves"`
	PlayerTimes    map[string]float64 `json:"playerTimes"`
	Settlement     *Receipt           `json:"settlement,omitempty"`
}

// Copy returns a deep copy safe to hand to a marshaling goroutine.
func (o *Outcome) Copy() *Outcome {
	if o == nil {
		return nil
	}
	cp := &Outcome{
		Winner:         o.Winner,
		Loser:          o.Loser,
		WinnerNickname: o.WinnerNickname,
		PlayerWaves:    make(map[string]int, len(o.PlayerWaves)),
		PlayerTimes:    make(map[string]float64, len(o.PlayerTimes)),
	}
	for k, v := range o.PlayerWaves {
		cp.PlayerWaves[k] = v
	}
	for k, v := range o.PlayerTimes {
		cp.PlayerTimes[k] = v
	}
	if o.Settlement != nil {
		r := *o.Settlement
		cp.Settlement = &r
	}
	return cp
}
