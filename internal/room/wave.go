package room

import (
	log "github.com/sirupsen/logrus"
)

// WaveSync applies a readiness signal from a player and releases the wave
// barrier when every player is ready. The raw signal is relayed to the whole
// room immediately so clients can render the opponent's readiness without
// waiting for the barrier.
//
// The barrier releases only when all players are ready and the room has more
// than one player; a single-player room never blocks on it. The released
// wave is min(wave)+1 over the ready players, so the slower player's pace
// governs the shared wave number.
func (r *Room) WaveSync(address string, ready bool, currentWave int) (advanced bool, nextWave int) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	p := r.playerByAddrUnsafe(address)
	if p == nil {
		log.Warnf("room %s: wave sync from non-player %s ignored", r.Code, address)
		return false, 0
	}

	st := r.stateForUnsafe(address)
	st.ReadyForNextWave = ready
	if currentWave > 0 {
		st.Wave = currentWave
	}

	r.BroadcastUnsafe(map[string]interface{}{
		"type":             "wave_sync",
		"roomCode":         r.Code,
		"playerAddress":    address,
		"readyForNextWave": ready,
		"currentWave":      currentWave,
	})

	readyCount := 0
	for _, player := range r.Players {
		if st, ok := r.GameState[player.Address]; ok && st.ReadyForNextWave {
			readyCount++
		}
	}
	if readyCount != len(r.Players) || len(r.Players) <= 1 {
		return false, 0
	}

	// Barrier releases: advance everyone to the slowest ready player's
	// next wave.
	nextWave = 0
	for _, player := range r.Players {
		w := r.GameState[player.Address].Wave
		if w < 1 {
			w = 1
		}
		if nextWave == 0 || w+1 < nextWave {
			nextWave = w + 1
		}
	}

	for _, player := range r.Players {
		st := r.GameState[player.Address]
		st.Wave = nextWave
		st.ReadyForNextWave = false
	}

	log.Infof("room %s: wave barrier released, advancing to wave %d", r.Code, nextWave)
	r.BroadcastUnsafe(map[string]interface{}{
		"type":     "advance_wave",
		"roomCode": r.Code,
		"wave":     nextWave,
	})
	r.BroadcastRoomUpdatedUnsafe()
	return true, nextWave
}
