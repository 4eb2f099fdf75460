// internal/handlers/match_server.go
package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/EmoBanana/smtd-server/internal/journal"
	"github.com/EmoBanana/smtd-server/internal/models"
	"github.com/EmoBanana/smtd-server/internal/monitor"
	"github.com/EmoBanana/smtd-server/internal/registry"
	"github.com/EmoBanana/smtd-server/internal/room"
	"github.com/EmoBanana/smtd-server/internal/settlement"
)

// MatchServer is the high-level struct holding the room store, connection
// registry, and the settlement/journal/metrics collaborators. One handle*
// method per inbound event; each resolves the sender's identity through the
// registry before touching room state.
type MatchServer struct {
	Store      *room.Store
	Registry   *registry.Registry
	Dispatcher *settlement.Dispatcher
	Journal    *journal.Journal
	Monitor    *monitor.Monitor
	Logger     *logrus.Logger

	// Countdown is the fixed delay between challenge acceptance and match
	// start.
	Countdown time.Duration
	// SettlementTimeout bounds one settlement call.
	SettlementTimeout time.Duration
}

// NewMatchServer wires a MatchServer around its collaborators.
func NewMatchServer(logger *logrus.Logger, settler settlement.Settler, j *journal.Journal, mon *monitor.Monitor) *MatchServer {
	store := room.NewStore()
	return &MatchServer{
		Store:    store,
		Registry: registry.New(),
		Dispatcher: &settlement.Dispatcher{
			Store:   store,
			Settler: settler,
			Journal: j,
			Monitor: mon,
		},
		Journal:           j,
		Monitor:           mon,
		Logger:            logger,
		Countdown:         5 * time.Second,
		SettlementTimeout: 30 * time.Second,
	}
}

// HandleMessage dispatches one decoded inbound event. Unknown event types
// are reported to the sender only; events from connections with no bound
// identity are discarded where identity is required.
func (ms *MatchServer) HandleMessage(conn *registry.Conn, eventType string, raw []byte) {
	if ms.Monitor != nil {
		ms.Monitor.IncMessagesReceived()
		defer func(start time.Time) {
			ms.Monitor.ObserveMessageLatency(time.Since(start))
		}(time.Now())
	}

	switch eventType {
	case "check_room":
		ms.handleCheckRoom(conn, raw)
	case "create_room":
		ms.handleCreateRoom(conn, raw)
	case "join_room":
		ms.handleJoinRoom(conn, raw)
	case "leave_room":
		ms.handleLeaveRoom(conn, raw)
	case "send_challenge":
		ms.handleSendChallenge(conn, raw)
	case "accept_challenge":
		ms.handleAcceptChallenge(conn, raw)
	case "game_state_update":
		ms.handleGameStateUpdate(conn, raw)
	case "wave_sync":
		ms.handleWaveSync(conn, raw)
	case "player_won":
		ms.handlePlayerWon(conn, raw)
	case "place_bet":
		ms.handlePlaceBet(conn, raw)
	default:
		ms.Logger.Warnf("conn %s: unknown event type '%s'", conn.ID, eventType)
		conn.WriteError("Unknown event type: " + eventType)
	}
}

// handleCheckRoom answers a synchronous existence and stake query to the
// requester only.
func (ms *MatchServer) handleCheckRoom(conn *registry.Conn, raw []byte) {
	var p struct {
		RoomCode string `json:"roomCode"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		conn.WriteError("Invalid payload")
		return
	}

	r, err := ms.Store.Get(p.RoomCode)
	if err != nil {
		conn.Write(map[string]interface{}{
			"type":   "room_checked",
			"exists": false,
		})
		return
	}
	conn.Write(map[string]interface{}{
		"type":        "room_checked",
		"exists":      true,
		"stakeAmount": r.StakeAmount,
		"players":     r.PlayerCount(),
	})
}

func (ms *MatchServer) handleCreateRoom(conn *registry.Conn, raw []byte) {
	var p struct {
		RoomCode    string `json:"roomCode"`
		Nickname    string `json:"nickname"`
		Address     string `json:"address"`
		StakeAmount uint64 `json:"stakeAmount"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomCode == "" || p.Address == "" {
		conn.WriteError("Invalid payload")
		return
	}

	ms.Registry.Bind(conn.ID, p.Address)

	r := room.New(p.RoomCode, p.Address, p.Nickname, p.StakeAmount, conn)
	if err := ms.Store.Create(r); err != nil {
		conn.WriteError("Room code already exists")
		return
	}
	ms.Registry.EnterRoom(conn.ID, p.RoomCode)
	if ms.Monitor != nil {
		ms.Monitor.SetActiveRooms(ms.Store.Len())
	}

	ms.Logger.Infof("room %s created by %s", p.RoomCode, p.Nickname)
	conn.Write(map[string]interface{}{
		"type": "room_created",
		"room": r.Snapshot(),
	})
	ms.Journal.PublishAsync(p.RoomCode, "room_created", map[string]interface{}{
		"owner": p.Address,
		"stake": p.StakeAmount,
	})
}

func (ms *MatchServer) handleJoinRoom(conn *registry.Conn, raw []byte) {
	var p struct {
		RoomCode string `json:"roomCode"`
		Nickname string `json:"nickname"`
		Address  string `json:"address"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomCode == "" || p.Address == "" {
		conn.WriteError("Invalid payload")
		return
	}

	r, err := ms.Store.Get(p.RoomCode)
	if err != nil {
		conn.WriteError("Room not found")
		return
	}

	ms.Registry.Bind(conn.ID, p.Address)
	role := r.Join(conn, p.Address, p.Nickname)
	ms.Registry.EnterRoom(conn.ID, p.RoomCode)

	replyType := "room_joined"
	if role == room.JoinedAsSpectator {
		replyType = "joined_as_spectator"
	}
	conn.Write(map[string]interface{}{
		"type": replyType,
		"room": r.Snapshot(),
	})
	r.BroadcastRoomUpdated()

	ms.Journal.PublishAsync(p.RoomCode, "room_joined", map[string]interface{}{
		"address":   p.Address,
		"spectator": role == room.JoinedAsSpectator,
	})
}

func (ms *MatchServer) handleLeaveRoom(conn *registry.Conn, raw []byte) {
	var p struct {
		RoomCode string `json:"roomCode"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		conn.WriteError("Invalid payload")
		return
	}

	r, err := ms.Store.Get(p.RoomCode)
	if err != nil {
		conn.WriteError("Room not found")
		return
	}
	ms.departRoom(conn.ID, r)
}

// departRoom removes one connection from one room and deletes the room from
// the store when its last player leaves.
func (ms *MatchServer) departRoom(connID uuid.UUID, r *room.Room) {
	empty := r.Leave(connID)
	ms.Registry.ExitRoom(connID, r.Code)
	if empty {
		ms.Store.Delete(r.Code)
	}
	if ms.Monitor != nil {
		ms.Monitor.SetActiveRooms(ms.Store.Len())
	}
}

func (ms *MatchServer) handleSendChallenge(conn *registry.Conn, raw []byte) {
	var p struct {
		RoomCode          string `json:"roomCode"`
		ChallengerAddress string `json:"challengerAddress"`
		ChallengedAddress string `json:"challengedAddress"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		conn.WriteError("Invalid payload")
		return
	}

	r, err := ms.Store.Get(p.RoomCode)
	if err != nil {
		conn.WriteError("Room not found")
		return
	}
	r.SendChallenge(p.ChallengerAddress, p.ChallengedAddress)
}

func (ms *MatchServer) handleAcceptChallenge(conn *registry.Conn, raw []byte) {
	var p struct {
		RoomCode string `json:"roomCode"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		conn.WriteError("Invalid payload")
		return
	}

	addr, err := ms.Registry.Resolve(conn.ID)
	if err != nil {
		ms.Logger.Warnf("conn %s: accept_challenge from unbound connection discarded", conn.ID)
		return
	}

	r, err := ms.Store.Get(p.RoomCode)
	if err != nil {
		conn.WriteError("Room not found")
		return
	}

	if !r.AcceptChallenge(addr) {
		return
	}

	// The countdown timer is registered once and never cancelled. If the
	// room is torn down before it fires, the callback finds nothing in the
	// store and no-ops.
	code := p.RoomCode
	time.AfterFunc(ms.Countdown, func() {
		r, err := ms.Store.Get(code)
		if err != nil {
			ms.Logger.Infof("room %s deleted during countdown, match start skipped", code)
			return
		}
		if r.StartPlaying() {
			ms.Journal.PublishAsync(code, "match_started", nil)
		}
	})
}

func (ms *MatchServer) handleGameStateUpdate(conn *registry.Conn, raw []byte) {
	var p struct {
		RoomCode  string             `json:"roomCode"`
		GameState models.ClientState `json:"gameState"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		conn.WriteError("Invalid payload")
		return
	}

	addr, err := ms.Registry.Resolve(conn.ID)
	if err != nil {
		ms.Logger.Warnf("conn %s: game_state_update from unbound connection discarded", conn.ID)
		return
	}

	r, err := ms.Store.Get(p.RoomCode)
	if err != nil {
		return
	}

	if outcome := r.ReportState(addr, p.GameState); outcome != nil {
		ms.finishMatch(r, outcome)
	}
}

func (ms *MatchServer) handleWaveSync(conn *registry.Conn, raw []byte) {
	var p struct {
		RoomCode         string `json:"roomCode"`
		ReadyForNextWave bool   `json:"readyForNextWave"`
		CurrentWave      int    `json:"currentWave"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		conn.WriteError("Invalid payload")
		return
	}

	addr, err := ms.Registry.Resolve(conn.ID)
	if err != nil {
		ms.Logger.Warnf("conn %s: wave_sync from unbound connection discarded", conn.ID)
		return
	}

	r, err := ms.Store.Get(p.RoomCode)
	if err != nil {
		ms.Logger.Warnf("wave_sync for unknown room %s", p.RoomCode)
		return
	}
	r.WaveSync(addr, p.ReadyForNextWave, p.CurrentWave)
}

func (ms *MatchServer) handlePlayerWon(conn *registry.Conn, raw []byte) {
	var p struct {
		RoomCode string `json:"roomCode"`
		Winner   string `json:"winner"`
		Loser    string `json:"loser"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		conn.WriteError("Invalid payload")
		return
	}

	r, err := ms.Store.Get(p.RoomCode)
	if err != nil {
		return
	}

	if outcome := r.ClaimWin(p.Winner, p.Loser); outcome != nil {
		ms.finishMatch(r, outcome)
	}
}

func (ms *MatchServer) handlePlaceBet(conn *registry.Conn, raw []byte) {
	var p struct {
		RoomCode      string `json:"roomCode"`
		PlayerAddress string `json:"playerAddress"`
		Amount        uint64 `json:"amount"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		conn.WriteError("Invalid payload")
		return
	}

	r, err := ms.Store.Get(p.RoomCode)
	if err != nil {
		return
	}
	r.PlaceBet(conn.ID, p.PlayerAddress, p.Amount)
}

// finishMatch runs the post-outcome handoff: journal the result, count it,
// and dispatch settlement. The outcome is already latched and broadcast, so
// the settlement call runs on its own goroutine and can never reverse it.
func (ms *MatchServer) finishMatch(r *room.Room, outcome *models.Outcome) {
	if ms.Monitor != nil {
		ms.Monitor.IncMatchesFinished()
	}
	ms.Journal.PublishAsync(r.Code, "game_over", map[string]interface{}{
		"winner": outcome.Winner,
		"loser":  outcome.Loser,
	})

	code := r.Code
	winner := outcome.Winner
	stake := r.StakeAmount
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ms.SettlementTimeout)
		defer cancel()
		ms.Dispatcher.Dispatch(ctx, code, winner, stake)
	}()
}

// Disconnect unbinds a connection and runs departure handling for every room
// it still occupied.
func (ms *MatchServer) Disconnect(conn *registry.Conn) {
	addr, codes := ms.Registry.Unbind(conn.ID)
	for _, code := range codes {
		r, err := ms.Store.Get(code)
		if err != nil {
			continue
		}
		ms.departRoom(conn.ID, r)
	}
	if addr != "" {
		ms.Logger.Infof("conn %s (%s) disconnected from %d room(s)", conn.ID, addr, len(codes))
	}
}
