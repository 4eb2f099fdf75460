package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmoBanana/smtd-server/internal/models"
	"github.com/EmoBanana/smtd-server/internal/registry"
	"github.com/EmoBanana/smtd-server/internal/room"
)

type recordingSettler struct {
	receipt models.Receipt
	err     error
	calls   chan string
}

func newRecordingSettler() *recordingSettler {
	return &recordingSettler{
		receipt: models.Receipt{Success: true, Reference: "tx-1"},
		calls:   make(chan string, 4),
	}
}

func (s *recordingSettler) Settle(ctx context.Context, winner string, amount uint64) (models.Receipt, error) {
	s.calls <- winner
	rc := s.receipt
	rc.Amount = amount
	return rc, s.err
}

func newTestServer(t *testing.T) (*MatchServer, *recordingSettler) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	settler := newRecordingSettler()
	ms := NewMatchServer(logger, settler, nil, nil)
	ms.Countdown = 10 * time.Millisecond
	ms.SettlementTimeout = time.Second
	return ms, settler
}

// send marshals a payload and feeds it through the event dispatcher the way
// the read pump would.
func send(t *testing.T, ms *MatchServer, conn *registry.Conn, eventType string, payload map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	ms.HandleMessage(conn, eventType, raw)
}

func drain(c *registry.Conn) []map[string]interface{} {
	var events []map[string]interface{}
	for {
		select {
		case msg := <-c.OutChan:
			events = append(events, msg)
		default:
			return events
		}
	}
}

func lastOfType(events []map[string]interface{}, typ string) map[string]interface{} {
	var found map[string]interface{}
	for _, ev := range events {
		if ev["type"] == typ {
			found = ev
		}
	}
	return found
}

// seedMatch drives two players through create/join/challenge/accept and waits
// out the countdown, leaving the room in the playing phase.
func seedMatch(t *testing.T, ms *MatchServer) (alice, bob *registry.Conn) {
	t.Helper()
	alice = registry.NewConn()
	bob = registry.NewConn()

	send(t, ms, alice, "create_room", map[string]interface{}{
		"roomCode": "424242", "nickname": "Alice", "address": "AAA", "stakeAmount": 10_000_000,
	})
	send(t, ms, bob, "join_room", map[string]interface{}{
		"roomCode": "424242", "nickname": "Bob", "address": "BBB",
	})
	send(t, ms, alice, "send_challenge", map[string]interface{}{
		"roomCode": "424242", "challengerAddress": "AAA", "challengedAddress": "BBB",
	})
	send(t, ms, bob, "accept_challenge", map[string]interface{}{
		"roomCode": "424242",
	})

	r, err := ms.Store.Get("424242")
	require.NoError(t, err)
	require.Equal(t, room.StatusCountdown, r.CurrentStatus())
	require.Eventually(t, func() bool {
		return r.CurrentStatus() == room.StatusPlaying
	}, time.Second, 5*time.Millisecond)

	drain(alice)
	drain(bob)
	return alice, bob
}

func TestCreateRoomRepliesWithSnapshot(t *testing.T) {
	ms, _ := newTestServer(t)
	alice := registry.NewConn()

	send(t, ms, alice, "create_room", map[string]interface{}{
		"roomCode": "111111", "nickname": "Alice", "address": "AAA", "stakeAmount": 5,
	})

	ev := lastOfType(drain(alice), "room_created")
	require.NotNil(t, ev)
	snap := ev["room"].(map[string]interface{})
	assert.Equal(t, "111111", snap["code"])
	assert.Equal(t, "AAA", snap["owner"])

	r, err := ms.Store.Get("111111")
	require.NoError(t, err)
	assert.Equal(t, 1, r.PlayerCount())
}

func TestCreateRoomCodeCollision(t *testing.T) {
	ms, _ := newTestServer(t)
	alice := registry.NewConn()
	carl := registry.NewConn()

	send(t, ms, alice, "create_room", map[string]interface{}{
		"roomCode": "111111", "nickname": "Alice", "address": "AAA",
	})
	send(t, ms, carl, "create_room", map[string]interface{}{
		"roomCode": "111111", "nickname": "Carl", "address": "CCC",
	})

	ev := lastOfType(drain(carl), "room_error")
	require.NotNil(t, ev)
	assert.Equal(t, "Room code already exists", ev["message"])

	// The original room is untouched.
	r, err := ms.Store.Get("111111")
	require.NoError(t, err)
	assert.Equal(t, "AAA", r.Owner)
}

func TestCheckRoom(t *testing.T) {
	ms, _ := newTestServer(t)
	alice := registry.NewConn()
	probe := registry.NewConn()

	send(t, ms, alice, "create_room", map[string]interface{}{
		"roomCode": "222222", "nickname": "Alice", "address": "AAA", "stakeAmount": 7,
	})

	send(t, ms, probe, "check_room", map[string]interface{}{"roomCode": "222222"})
	ev := lastOfType(drain(probe), "room_checked")
	require.NotNil(t, ev)
	assert.Equal(t, true, ev["exists"])
	assert.Equal(t, uint64(7), ev["stakeAmount"])
	assert.Equal(t, 1, ev["players"])

	send(t, ms, probe, "check_room", map[string]interface{}{"roomCode": "999999"})
	ev = lastOfType(drain(probe), "room_checked")
	require.NotNil(t, ev)
	assert.Equal(t, false, ev["exists"])
}

func TestThirdJoinerBecomesSpectator(t *testing.T) {
	ms, _ := newTestServer(t)
	alice := registry.NewConn()
	bob := registry.NewConn()
	carl := registry.NewConn()

	send(t, ms, alice, "create_room", map[string]interface{}{
		"roomCode": "333333", "nickname": "Alice", "address": "AAA",
	})
	send(t, ms, bob, "join_room", map[string]interface{}{
		"roomCode": "333333", "nickname": "Bob", "address": "BBB",
	})
	send(t, ms, carl, "join_room", map[string]interface{}{
		"roomCode": "333333", "nickname": "Carl", "address": "CCC",
	})

	assert.NotNil(t, lastOfType(drain(bob), "room_joined"))
	assert.NotNil(t, lastOfType(drain(carl), "joined_as_spectator"))

	r, err := ms.Store.Get("333333")
	require.NoError(t, err)
	assert.Equal(t, 2, r.PlayerCount())
	assert.Equal(t, 1, r.SpectatorCount())
}

func TestJoinUnknownRoom(t *testing.T) {
	ms, _ := newTestServer(t)
	bob := registry.NewConn()

	send(t, ms, bob, "join_room", map[string]interface{}{
		"roomCode": "000000", "nickname": "Bob", "address": "BBB",
	})

	ev := lastOfType(drain(bob), "room_error")
	require.NotNil(t, ev)
	assert.Equal(t, "Room not found", ev["message"])
}

func TestAcceptChallengeStartsMatchAfterCountdown(t *testing.T) {
	ms, _ := newTestServer(t)
	alice := registry.NewConn()
	bob := registry.NewConn()

	send(t, ms, alice, "create_room", map[string]interface{}{
		"roomCode": "888888", "nickname": "Alice", "address": "AAA",
	})
	send(t, ms, bob, "join_room", map[string]interface{}{
		"roomCode": "888888", "nickname": "Bob", "address": "BBB",
	})
	send(t, ms, alice, "send_challenge", map[string]interface{}{
		"roomCode": "888888", "challengerAddress": "AAA", "challengedAddress": "BBB",
	})
	send(t, ms, bob, "accept_challenge", map[string]interface{}{"roomCode": "888888"})

	r, err := ms.Store.Get("888888")
	require.NoError(t, err)
	assert.Equal(t, room.StatusCountdown, r.CurrentStatus())

	require.Eventually(t, func() bool {
		return r.CurrentStatus() == room.StatusPlaying
	}, time.Second, 5*time.Millisecond)

	for _, conn := range []*registry.Conn{alice, bob} {
		assert.NotNil(t, lastOfType(drain(conn), "match_started"))
	}

	// A second acceptance after the match started is rejected outright.
	send(t, ms, bob, "accept_challenge", map[string]interface{}{"roomCode": "888888"})
	assert.Equal(t, room.StatusPlaying, r.CurrentStatus())
}

func TestCountdownOnDeletedRoomIsNoOp(t *testing.T) {
	ms, _ := newTestServer(t)
	alice := registry.NewConn()
	bob := registry.NewConn()

	send(t, ms, alice, "create_room", map[string]interface{}{
		"roomCode": "444444", "nickname": "Alice", "address": "AAA",
	})
	send(t, ms, bob, "join_room", map[string]interface{}{
		"roomCode": "444444", "nickname": "Bob", "address": "BBB",
	})
	send(t, ms, alice, "send_challenge", map[string]interface{}{
		"roomCode": "444444", "challengerAddress": "AAA", "challengedAddress": "BBB",
	})
	send(t, ms, bob, "accept_challenge", map[string]interface{}{"roomCode": "444444"})

	// Both players bail out before the countdown elapses; the room is gone.
	send(t, ms, bob, "leave_room", map[string]interface{}{"roomCode": "444444"})
	send(t, ms, alice, "leave_room", map[string]interface{}{"roomCode": "444444"})
	_, err := ms.Store.Get("444444")
	require.Error(t, err)

	assert.NotPanics(t, func() {
		time.Sleep(5 * ms.Countdown)
	})
	_, err = ms.Store.Get("444444")
	assert.Error(t, err)
}

func TestWaveSyncBarrierThroughDispatcher(t *testing.T) {
	ms, _ := newTestServer(t)
	alice, bob := seedMatch(t, ms)

	send(t, ms, alice, "wave_sync", map[string]interface{}{
		"roomCode": "424242", "readyForNextWave": true, "currentWave": 3,
	})
	assert.Nil(t, lastOfType(drain(bob), "advance_wave"))

	send(t, ms, bob, "wave_sync", map[string]interface{}{
		"roomCode": "424242", "readyForNextWave": true, "currentWave": 3,
	})
	ev := lastOfType(drain(alice), "advance_wave")
	require.NotNil(t, ev)
	assert.Equal(t, 4, ev["wave"])
}

func TestGameStateUpdateRelaysAndFinishes(t *testing.T) {
	ms, settler := newTestServer(t)
	alice, bob := seedMatch(t, ms)

	send(t, ms, alice, "game_state_update", map[string]interface{}{
		"roomCode":  "424242",
		"gameState": map[string]interface{}{"wave": 2, "towerHp": 80, "maxTowerHp": 100, "coins": 50, "gameTime": 31.5},
	})
	ev := lastOfType(drain(bob), "opponent_state_update")
	require.NotNil(t, ev)
	assert.Equal(t, "AAA", ev["address"])
	assert.Nil(t, lastOfType(drain(alice), "opponent_state_update"))

	// Alice's tower falls; Bob wins and collects the pot.
	send(t, ms, alice, "game_state_update", map[string]interface{}{
		"roomCode":  "424242",
		"gameState": map[string]interface{}{"wave": 2, "towerHp": 0, "maxTowerHp": 100, "coins": 50, "gameTime": 60.0},
	})

	ev = lastOfType(drain(bob), "game_over")
	require.NotNil(t, ev)
	assert.Equal(t, "BBB", ev["winner"])
	assert.Equal(t, "AAA", ev["loser"])

	select {
	case winner := <-settler.calls:
		assert.Equal(t, "BBB", winner)
	case <-time.After(time.Second):
		t.Fatal("settlement never dispatched")
	}

	r, err := ms.Store.Get("424242")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		return r.Outcome != nil && r.Outcome.Settlement != nil
	}, time.Second, 5*time.Millisecond)
}

func TestPlayerWonSettlesOnce(t *testing.T) {
	ms, settler := newTestServer(t)
	alice, bob := seedMatch(t, ms)

	send(t, ms, alice, "player_won", map[string]interface{}{
		"roomCode": "424242", "winner": "AAA", "loser": "BBB",
	})
	// A duplicate claim and a late zero-HP report both arrive after the latch.
	send(t, ms, bob, "player_won", map[string]interface{}{
		"roomCode": "424242", "winner": "BBB", "loser": "AAA",
	})
	send(t, ms, bob, "game_state_update", map[string]interface{}{
		"roomCode":  "424242",
		"gameState": map[string]interface{}{"wave": 2, "towerHp": 0, "maxTowerHp": 100, "coins": 0, "gameTime": 61.0},
	})

	select {
	case winner := <-settler.calls:
		assert.Equal(t, "AAA", winner)
	case <-time.After(time.Second):
		t.Fatal("settlement never dispatched")
	}
	select {
	case <-settler.calls:
		t.Fatal("settlement dispatched twice")
	case <-time.After(50 * time.Millisecond):
	}

	events := drain(alice)
	var gameOvers int
	for _, ev := range events {
		if ev["type"] == "game_over" {
			gameOvers++
		}
	}
	assert.Equal(t, 1, gameOvers)
}

func TestPlaceBetThroughDispatcher(t *testing.T) {
	ms, _ := newTestServer(t)
	alice := registry.NewConn()
	bob := registry.NewConn()
	carl := registry.NewConn()

	send(t, ms, alice, "create_room", map[string]interface{}{
		"roomCode": "555555", "nickname": "Alice", "address": "AAA",
	})
	send(t, ms, bob, "join_room", map[string]interface{}{
		"roomCode": "555555", "nickname": "Bob", "address": "BBB",
	})
	send(t, ms, carl, "join_room", map[string]interface{}{
		"roomCode": "555555", "nickname": "Carl", "address": "CCC",
	})
	drain(alice)

	send(t, ms, carl, "place_bet", map[string]interface{}{
		"roomCode": "555555", "playerAddress": "AAA", "amount": 1_000_000,
	})

	ev := lastOfType(drain(alice), "room_updated")
	require.NotNil(t, ev)

	r, err := ms.Store.Get("555555")
	require.NoError(t, err)
	r.Mu.Lock()
	defer r.Mu.Unlock()
	require.Len(t, r.Spectators, 1)
	assert.Equal(t, "AAA", r.Spectators[0].BetOn)
	assert.Equal(t, uint64(1_000_000), r.Spectators[0].BetAmount)
}

func TestDisconnectRunsDeparture(t *testing.T) {
	ms, _ := newTestServer(t)
	alice := registry.NewConn()
	bob := registry.NewConn()

	send(t, ms, alice, "create_room", map[string]interface{}{
		"roomCode": "666666", "nickname": "Alice", "address": "AAA",
	})
	send(t, ms, bob, "join_room", map[string]interface{}{
		"roomCode": "666666", "nickname": "Bob", "address": "BBB",
	})
	drain(bob)

	// Bob drops; the room survives and he is removed from the roster.
	ms.Disconnect(bob)
	r, err := ms.Store.Get("666666")
	require.NoError(t, err)
	assert.Equal(t, 1, r.PlayerCount())

	// Alice drops too; she was the last player, so the room is torn down.
	ms.Disconnect(alice)
	_, err = ms.Store.Get("666666")
	assert.Error(t, err)
}

func TestOwnerDisconnectTransfersOwnership(t *testing.T) {
	ms, _ := newTestServer(t)
	alice := registry.NewConn()
	bob := registry.NewConn()

	send(t, ms, alice, "create_room", map[string]interface{}{
		"roomCode": "777777", "nickname": "Alice", "address": "AAA",
	})
	send(t, ms, bob, "join_room", map[string]interface{}{
		"roomCode": "777777", "nickname": "Bob", "address": "BBB",
	})

	ms.Disconnect(alice)

	r, err := ms.Store.Get("777777")
	require.NoError(t, err)
	assert.Equal(t, "BBB", r.Owner)
}

func TestUnknownEventType(t *testing.T) {
	ms, _ := newTestServer(t)
	conn := registry.NewConn()

	ms.HandleMessage(conn, "warp_drive", []byte(`{}`))

	ev := lastOfType(drain(conn), "room_error")
	require.NotNil(t, ev)
	assert.Contains(t, ev["message"], "Unknown event type")
}

func TestUnboundGameStateUpdateDiscarded(t *testing.T) {
	ms, settler := newTestServer(t)
	seedMatch(t, ms)

	stranger := registry.NewConn()
	send(t, ms, stranger, "game_state_update", map[string]interface{}{
		"roomCode":  "424242",
		"gameState": map[string]interface{}{"wave": 1, "towerHp": 0, "maxTowerHp": 100, "coins": 0, "gameTime": 1.0},
	})

	select {
	case <-settler.calls:
		t.Fatal("unbound connection triggered settlement")
	case <-time.After(50 * time.Millisecond):
	}
}
