package ledger

import (
	"context"
	"sort"

	"PayLedger/internal/event"
	"PayLedger/internal/money"
)

type account struct {
	available money.Amount
	held      money.Amount
	locked    bool
}

// record remembers an amount-carrying transaction so later disputes can be
// adjudicated against it. Only deposits may actually be disputed; withdrawal
// records exist so a dispute naming one is a reportable IllegalDispute
// rather than an indistinguishable no-op.
type record struct {
	ev       event.Event
	disputed bool
}

// Memory keeps the whole ledger resident in local memory. It is the sole
// production backing: simple and fast, with no locking because exactly one
// sequential writer applies events. Clients are created lazily on first
// reference and never deleted; transaction records are never deleted.
type Memory struct {
	accounts map[event.ClientID]*account
	records  map[event.TxID]*record
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[event.ClientID]*account),
		records:  make(map[event.TxID]*record),
	}
}

// Apply validates the event fully before mutating, so a returned error
// always means the ledger is unchanged.
func (m *Memory) Apply(_ context.Context, ev event.Event) error {
	switch ev.Kind {
	case event.KindDeposit:
		return m.deposit(ev)
	case event.KindWithdrawal:
		return m.withdraw(ev)
	case event.KindDispute:
		return m.dispute(ev)
	case event.KindResolve:
		return m.resolve(ev)
	case event.KindChargeback:
		return m.chargeback(ev)
	default:
		return NewError(CodeUnknown, ev.Client, ev.Tx)
	}
}

func (m *Memory) deposit(ev event.Event) error {
	if _, seen := m.records[ev.Tx]; seen {
		return NewError(CodeDuplicateTransaction, ev.Client, ev.Tx)
	}

	acct, ok := m.accounts[ev.Client]
	if !ok {
		acct = &account{}
		m.accounts[ev.Client] = acct
	}

	acct.available += ev.Amount
	m.records[ev.Tx] = &record{ev: ev}
	return nil
}

func (m *Memory) withdraw(ev event.Event) error {
	acct, ok := m.accounts[ev.Client]
	if !ok {
		return NewError(CodeUnknownClient, ev.Client, ev.Tx)
	}
	if acct.available < ev.Amount {
		return NewError(CodeInsufficientFunds, ev.Client, ev.Tx)
	}
	if acct.locked {
		return NewError(CodeAccountLocked, ev.Client, ev.Tx)
	}

	acct.available -= ev.Amount
	if _, seen := m.records[ev.Tx]; !seen {
		m.records[ev.Tx] = &record{ev: ev}
	}
	return nil
}

func (m *Memory) dispute(ev event.Event) error {
	rec, ok := m.records[ev.Tx]
	if !ok {
		// Unknown tx: assume an error on the partner's side, not ours.
		return nil
	}
	if rec.ev.Kind != event.KindDeposit {
		return NewError(CodeIllegalDispute, ev.Client, ev.Tx)
	}
	if rec.disputed {
		return NewError(CodeDoubleDispute, ev.Client, ev.Tx)
	}

	acct, ok := m.accounts[rec.ev.Client]
	if !ok {
		return NewError(CodeUnknownClient, ev.Client, ev.Tx)
	}
	// The deposit may already have been spent. The unsigned representation
	// cannot go negative, so an uncoverable dispute is rejected rather than
	// allowed to wrap.
	if acct.available < rec.ev.Amount {
		return NewError(CodeInsufficientFunds, ev.Client, ev.Tx)
	}

	rec.disputed = true
	acct.available -= rec.ev.Amount
	acct.held += rec.ev.Amount
	return nil
}

func (m *Memory) resolve(ev event.Event) error {
	rec, ok := m.records[ev.Tx]
	if !ok || !rec.disputed {
		// Not under dispute: ignore, same assumption as unknown tx.
		return nil
	}

	acct, ok := m.accounts[rec.ev.Client]
	if !ok {
		return NewError(CodeUnknownClient, ev.Client, ev.Tx)
	}

	rec.disputed = false
	acct.held -= rec.ev.Amount
	acct.available += rec.ev.Amount
	return nil
}

func (m *Memory) chargeback(ev event.Event) error {
	rec, ok := m.records[ev.Tx]
	if !ok || !rec.disputed {
		return nil
	}

	acct, ok := m.accounts[rec.ev.Client]
	if !ok {
		return NewError(CodeUnknownClient, ev.Client, ev.Tx)
	}

	rec.disputed = false
	acct.held -= rec.ev.Amount
	acct.locked = true
	return nil
}

// Balances returns a snapshot sorted by client id.
func (m *Memory) Balances(_ context.Context) ([]Balance, error) {
	out := make([]Balance, 0, len(m.accounts))
	for id, acct := range m.accounts {
		out = append(out, Balance{
			Client:    id,
			Available: acct.available,
			Held:      acct.held,
			Locked:    acct.locked,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Client < out[j].Client })
	return out, nil
}
