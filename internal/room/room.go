package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/EmoBanana/smtd-server/internal/models"
	"github.com/EmoBanana/smtd-server/internal/registry"
)

// Status is the lifecycle state of a room.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCountdown Status = "countdown"
	StatusPlaying   Status = "playing"
	StatusFinished  Status = "finished"
)

// Join results, reported back so the handler can pick the reply event.
type JoinRole int

const (
	JoinedAsPlayer JoinRole = iota
	JoinedAsSpectator
	Rejoined
)

// Room is one match session. All mutation happens under Mu; every inbound
// event against the room runs to completion while holding it. The two
// suspension points (countdown timer, settlement call) run outside the lock
// and re-validate room state when they resume.
type Room struct {
	Code        string
	Owner       string
	Players     []*models.Player
	Spectators  []*models.Spectator
	Status      Status
	StakeAmount uint64
	CreatedAt   time.Time
	Challenge   *models.ChallengeRecord

	// GameState holds each player's RoundState keyed by address.
	GameState map[string]*models.RoundState

	// Outcome is set exactly once, by the terminal-event arbiter.
	Outcome *models.Outcome

	// MatchFinished latches on the first accepted terminal event; no further
	// terminal events are processed once it is true.
	MatchFinished bool

	// conns holds every live connection bound to this room, players and
	// spectators alike. Broadcasts fan out over it.
	conns map[uuid.UUID]*registry.Conn

	Mu sync.Mutex
}

// New creates a room with its owning player as the first member.
func New(code, ownerAddr, nickname string, stake uint64, conn *registry.Conn) *Room {
	r := &Room{
		Code:  code,
		Owner: ownerAddr,
		Players: []*models.Player{{
			Address:     ownerAddr,
			Nickname:    nickname,
			ConnID:      conn.ID,
			StakeAmount: stake,
		}},
		Spectators:  []*models.Spectator{},
		Status:      StatusWaiting,
		StakeAmount: stake,
		CreatedAt:   time.Now(),
		GameState:   make(map[string]*models.RoundState),
		conns:       map[uuid.UUID]*registry.Conn{conn.ID: conn},
	}
	return r
}

// Join admits a connection as a player, spectator, or reconnecting player.
// A join matching an existing player's address re-binds that player's
// connection handle instead of adding a duplicate entry. Otherwise a join
// becomes a player only while the room is waiting with an open seat; every
// other join becomes a spectator.
func (r *Room) Join(conn *registry.Conn, address, nickname string) JoinRole {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if p := r.playerByAddrUnsafe(address); p != nil {
		delete(r.conns, p.ConnID)
		p.ConnID = conn.ID
		r.conns[conn.ID] = conn
		log.Infof("room %s: player %s reconnected", r.Code, nickname)
		return Rejoined
	}

	if len(r.Players) < 2 && r.Status == StatusWaiting {
		r.Players = append(r.Players, &models.Player{
			Address:  address,
			Nickname: nickname,
			ConnID:   conn.ID,
		})
		r.conns[conn.ID] = conn
		log.Infof("room %s: %s joined as player", r.Code, nickname)
		return JoinedAsPlayer
	}

	r.Spectators = append(r.Spectators, &models.Spectator{
		Address:  address,
		Nickname: nickname,
		ConnID:   conn.ID,
	})
	r.conns[conn.ID] = conn
	log.Infof("room %s: %s joined as spectator", r.Code, nickname)
	return JoinedAsSpectator
}

// Leave removes whichever member owns the given connection handle. If the
// departing player owned the room and other players remain, ownership moves
// to one of them; if they were the last player, the room broadcasts
// room_closed and reports empty=true so the caller can delete it from the
// store. Every other departure re-broadcasts the updated room.
func (r *Room) Leave(connID uuid.UUID) (empty bool) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	idx := -1
	for i, p := range r.Players {
		if p.ConnID == connID {
			idx = i
			break
		}
	}

	if idx >= 0 {
		departing := r.Players[idx]
		if departing.Address == r.Owner {
			if len(r.Players) > 1 {
				for _, p := range r.Players {
					if p.ConnID != connID {
						r.Owner = p.Address
						break
					}
				}
			} else {
				log.Infof("room %s: last player left, closing", r.Code)
				r.BroadcastUnsafe(map[string]interface{}{
					"type":     "room_closed",
					"roomCode": r.Code,
				})
				delete(r.conns, connID)
				return true
			}
		}
		r.Players = append(r.Players[:idx], r.Players[idx+1:]...)
	} else {
		for i, s := range r.Spectators {
			if s.ConnID == connID {
				r.Spectators = append(r.Spectators[:i], r.Spectators[i+1:]...)
				break
			}
		}
	}

	delete(r.conns, connID)
	r.BroadcastRoomUpdatedUnsafe()
	return false
}

// SendChallenge records a pending challenge and announces it.
func (r *Room) SendChallenge(challenger, challenged string) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	r.Challenge = &models.ChallengeRecord{
		Challenger: challenger,
		Challenged: challenged,
	}
	r.BroadcastUnsafe(map[string]interface{}{
		"type":       "challenge_sent",
		"roomCode":   r.Code,
		"challenger": challenger,
		"challenged": challenged,
	})
	r.BroadcastRoomUpdatedUnsafe()
}

// AcceptChallenge consumes the pending challenge and moves the room into
// countdown. It only succeeds for an unaccepted challenge addressed to the
// accepting identity, so the countdown timer is registered at most once.
func (r *Room) AcceptChallenge(acceptor string) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	c := r.Challenge
	if c == nil || c.Accepted || c.Challenged != acceptor {
		return false
	}
	c.Accepted = true
	r.Status = StatusCountdown
	log.Infof("room %s: challenge accepted by %s, countdown started", r.Code, acceptor)
	r.BroadcastUnsafe(map[string]interface{}{
		"type":     "challenge_accepted",
		"roomCode": r.Code,
	})
	r.BroadcastRoomUpdatedUnsafe()
	return true
}

// StartPlaying completes the countdown transition. The countdown timer is
// not cancellable, so this is written to tolerate firing on a room that has
// moved on: it only acts while the room is still in countdown.
func (r *Room) StartPlaying() bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.Status != StatusCountdown {
		return false
	}
	r.Status = StatusPlaying
	log.Infof("room %s: match started", r.Code)
	r.BroadcastUnsafe(map[string]interface{}{
		"type":     "match_started",
		"roomCode": r.Code,
	})
	r.BroadcastRoomUpdatedUnsafe()
	return true
}

// PlaceBet records a spectator's bet and rebroadcasts the room. Bets from
// connections that are not spectators of this room are ignored.
func (r *Room) PlaceBet(connID uuid.UUID, playerAddress string, amount uint64) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	for _, s := range r.Spectators {
		if s.ConnID == connID {
			s.BetOn = playerAddress
			s.BetAmount = amount
			r.BroadcastRoomUpdatedUnsafe()
			return true
		}
	}
	return false
}

// Broadcast sends a message to every connection bound to the room.
func (r *Room) Broadcast(msg map[string]interface{}) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.BroadcastUnsafe(msg)
}

// BroadcastUnsafe sends a message to every bound connection. Assumes Mu is
// held. Writes are non-blocking, so slow consumers drop rather than stall
// the room.
func (r *Room) BroadcastUnsafe(msg map[string]interface{}) {
	for _, conn := range r.conns {
		conn.Write(msg)
	}
}

// BroadcastExceptUnsafe sends to every bound connection except one, used to
// relay a player's own snapshot to everyone else. Assumes Mu is held.
func (r *Room) BroadcastExceptUnsafe(exclude uuid.UUID, msg map[string]interface{}) {
	for id, conn := range r.conns {
		if id == exclude {
			continue
		}
		conn.Write(msg)
	}
}

// BroadcastRoomUpdated sends the full room snapshot to all members.
func (r *Room) BroadcastRoomUpdated() {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.BroadcastRoomUpdatedUnsafe()
}

// BroadcastRoomUpdatedUnsafe sends the full room snapshot. Assumes Mu is held.
func (r *Room) BroadcastRoomUpdatedUnsafe() {
	r.BroadcastUnsafe(map[string]interface{}{
		"type": "room_updated",
		"room": r.SnapshotUnsafe(),
	})
}

// Snapshot returns a deep copy of the room's wire-facing state.
func (r *Room) Snapshot() map[string]interface{} {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.SnapshotUnsafe()
}

// SnapshotUnsafe builds a deep copy of the room's wire-facing state so it can
// be marshaled by a write pump after the lock is released. Assumes Mu is held.
func (r *Room) SnapshotUnsafe() map[string]interface{} {
	players := make([]models.Player, len(r.Players))
	for i, p := range r.Players {
		players[i] = *p
	}
	spectators := make([]models.Spectator, len(r.Spectators))
	for i, s := range r.Spectators {
		spectators[i] = *s
	}
	gameState := make(map[string]models.RoundState, len(r.GameState))
	for addr, st := range r.GameState {
		gameState[addr] = *st
	}

	snap := map[string]interface{}{
		"code":          r.Code,
		"owner":         r.Owner,
		"players":       players,
		"spectators":    spectators,
		"status":        string(r.Status),
		"stakeAmount":   r.StakeAmount,
		"createdAt":     r.CreatedAt.UnixMilli(),
		"gameState":     gameState,
		"matchFinished": r.MatchFinished,
	}
	if r.Challenge != nil {
		c := *r.Challenge
		snap["challengeStatus"] = c
	}
	if r.Outcome != nil {
		snap["gameResults"] = r.Outcome.Copy()
	}
	return snap
}

// PlayerCount returns the current number of players.
func (r *Room) PlayerCount() int {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return len(r.Players)
}

// SpectatorCount returns the current number of spectators.
func (r *Room) SpectatorCount() int {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return len(r.Spectators)
}

// CurrentStatus returns the room's lifecycle status.
func (r *Room) CurrentStatus() Status {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.Status
}

func (r *Room) playerByAddrUnsafe(address string) *models.Player {
	for _, p := range r.Players {
		if p.Address == address {
			return p
		}
	}
	return nil
}

func (r *Room) otherPlayerUnsafe(address string) *models.Player {
	for _, p := range r.Players {
		if p.Address != address {
			return p
		}
	}
	return nil
}

// stateForUnsafe lazily creates the RoundState for a player. New states start
// at wave 1, the first round boundary.
func (r *Room) stateForUnsafe(address string) *models.RoundState {
	st, ok := r.GameState[address]
	if !ok {
		st = &models.RoundState{Wave: 1}
		r.GameState[address] = st
	}
	return st
}
