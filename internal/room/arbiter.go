package room

import (
	log "github.com/sirupsen/logrus"

	"github.com/EmoBanana/smtd-server/internal/models"
)

// ReportState records a player's progress snapshot, relays it to the rest of
// the room, and runs the loss-condition check. It returns a non-nil Outcome
// exactly once per room: the first time a player's tower HP reaches zero
// while an opponent is present. Later zero-HP reports are discarded by the
// matchFinished and per-player terminalEventSent guards. The check and set
// run under the room lock with no suspension between them.
func (r *Room) ReportState(address string, cs models.ClientState) *models.Outcome {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	p := r.playerByAddrUnsafe(address)
	if p == nil {
		return nil
	}

	st := r.stateForUnsafe(address)
	st.Apply(cs)

	r.BroadcastExceptUnsafe(p.ConnID, map[string]interface{}{
		"type":    "opponent_state_update",
		"address": address,
		"state":   cs,
	})

	if cs.TowerHP > 0 {
		return nil
	}
	if r.MatchFinished || st.TerminalEventSent {
		return nil
	}
	st.TerminalEventSent = true
	r.MatchFinished = true

	opponent := r.otherPlayerUnsafe(address)
	if opponent == nil {
		// Solo room: latch so repeated reports stay quiet, but there is
		// no winner to announce.
		log.Infof("room %s: %s lost with no opponent present", r.Code, address)
		return nil
	}

	return r.finishUnsafe(opponent.Address, address)
}

// ClaimWin handles an explicit winner/loser claim. It is idempotent: claims
// against a room already finished are discarded. Returns the Outcome when
// the claim is the room's first terminal event, nil otherwise.
func (r *Room) ClaimWin(winner, loser string) *models.Outcome {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.Status == StatusFinished || r.MatchFinished {
		log.Infof("room %s: duplicate win claim discarded", r.Code)
		return nil
	}
	r.MatchFinished = true
	if st, ok := r.GameState[loser]; ok {
		st.TerminalEventSent = true
	}

	return r.finishUnsafe(winner, loser)
}

// finishUnsafe sets the terminal status, builds the Outcome from the
// per-player wave/time snapshots, and broadcasts game_over followed by the
// updated room. Assumes Mu is held and the terminal latches are already set.
func (r *Room) finishUnsafe(winner, loser string) *models.Outcome {
	r.Status = StatusFinished

	winnerNickname := "Unknown"
	if p := r.playerByAddrUnsafe(winner); p != nil {
		winnerNickname = p.Nickname
	}

	outcome := &models.Outcome{
		Winner:         winner,
		Loser:          loser,
		WinnerNickname: winnerNickname,
		PlayerWaves:    make(map[string]int),
		PlayerTimes:    make(map[string]float64),
	}
	for _, addr := range []string{winner, loser} {
		if st, ok := r.GameState[addr]; ok {
			outcome.PlayerWaves[addr] = st.Wave
			outcome.PlayerTimes[addr] = st.GameTime
		} else {
			outcome.PlayerWaves[addr] = 0
			outcome.PlayerTimes[addr] = 0
		}
	}
	r.Outcome = outcome

	log.Infof("room %s: game over, winner %s (%s), loser %s", r.Code, winner, winnerNickname, loser)
	r.BroadcastUnsafe(map[string]interface{}{
		"type":           "game_over",
		"winner":         winner,
		"loser":          loser,
		"winnerNickname": winnerNickname,
	})
	r.BroadcastRoomUpdatedUnsafe()
	return outcome
}
