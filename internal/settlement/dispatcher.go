package settlement

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/EmoBanana/smtd-server/internal/journal"
	"github.com/EmoBanana/smtd-server/internal/monitor"
	"github.com/EmoBanana/smtd-server/internal/room"
)

// Dispatcher runs one settlement attempt per finished room. It must be
// invoked only after the terminal-event arbiter has latched the outcome and
// broadcast it: settlement failure never blocks or reverses the announced
// result, and there is no automatic retry.
type Dispatcher struct {
	Store   *room.Store
	Settler Settler
	Journal *journal.Journal
	Monitor *monitor.Monitor
}

// Dispatch settles the winner's reward for a finished room. The winner
// collects both players' stakes. Because the settlement call suspends, the
// room is re-fetched and re-validated after it resolves; the room may have
// been altered or deleted during the await.
func (d *Dispatcher) Dispatch(ctx context.Context, code, winner string, stake uint64) {
	amount := stake * 2

	receipt, err := d.Settler.Settle(ctx, winner, amount)

	r, gerr := d.Store.Get(code)
	if gerr != nil {
		log.Warnf("settlement: room %s gone before settlement resolved, result dropped", code)
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if !r.MatchFinished || r.Outcome == nil || r.Outcome.Winner != winner {
		log.Warnf("settlement: room %s outcome changed during settlement, result dropped", code)
		return
	}
	if r.Outcome.Settlement != nil {
		// Already settled; at most one attempt may land.
		return
	}

	if err == nil && !receipt.Success {
		err = ErrSettlementRejected
	}
	if err != nil {
		log.Warnf("settlement: failed for room %s winner %s: %v", code, winner, err)
		if d.Monitor != nil {
			d.Monitor.IncSettlementFailures()
		}
		r.BroadcastUnsafe(map[string]interface{}{
			"type":    "room_error",
			"message": "reward settlement failed",
		})
		d.Journal.PublishAsync(code, "settlement_failed", map[string]interface{}{
			"winner": winner,
			"amount": amount,
		})
		return
	}

	rc := receipt
	r.Outcome.Settlement = &rc
	log.Infof("settlement: room %s winner %s rewarded %d (ref %s)", code, winner, receipt.Amount, receipt.Reference)
	r.BroadcastUnsafe(map[string]interface{}{
		"type":      "winner_rewarded",
		"winner":    winner,
		"amount":    receipt.Amount,
		"reference": receipt.Reference,
	})
	d.Journal.PublishAsync(code, "winner_rewarded", map[string]interface{}{
		"winner":    winner,
		"amount":    receipt.Amount,
		"reference": receipt.Reference,
	})
}
