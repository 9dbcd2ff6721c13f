package ledger

import (
	"context"

	"PayLedger/internal/event"
	"PayLedger/internal/money"
)

// Balance is one row of the output snapshot. Total is always derived from
// available + held so the row can never get out of sync with itself.
type Balance struct {
	Client    event.ClientID
	Available money.Amount
	Held      money.Amount
	Locked    bool
}

// Total is the client's full balance: spendable plus held pending disputes.
func (b Balance) Total() money.Amount {
	return b.Available + b.Held
}

// State applies events to per-client balances. Each Apply is atomic with
// respect to the exposed state: implementations validate every precondition
// before mutating, so a returned error means no effect took place.
//
// Hard failures are reported as *Error. Benign mismatches against the
// partner feed (disputing an unknown transaction, resolving or charging back
// something not under dispute) are absorbed as no-ops, not errors.
type State interface {
	Apply(ctx context.Context, ev event.Event) error

	// Balances returns one row per client that has ever appeared, sorted
	// by client id.
	Balances(ctx context.Context) ([]Balance, error)
}
