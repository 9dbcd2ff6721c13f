package ledger_test

import (
	"context"
	"errors"
	"testing"

	"PayLedger/internal/event"
	"PayLedger/internal/ledger"
	"PayLedger/internal/money"
)

func apply(t *testing.T, s ledger.State, evs ...event.Event) {
	t.Helper()
	for _, ev := range evs {
		if err := s.Apply(context.Background(), ev); err != nil {
			t.Fatalf("apply %v tx %s: %v", ev.Kind, ev.Tx, err)
		}
	}
}

func applyErr(t *testing.T, s ledger.State, ev event.Event, want ledger.Code) {
	t.Helper()
	err := s.Apply(context.Background(), ev)
	if err == nil {
		t.Fatalf("apply %v tx %s: want %v, got nil", ev.Kind, ev.Tx, want)
	}
	var lerr *ledger.Error
	if !errors.As(err, &lerr) {
		t.Fatalf("apply %v tx %s: not a ledger error: %v", ev.Kind, ev.Tx, err)
	}
	if lerr.Code != want {
		t.Fatalf("apply %v tx %s: got code %v, want %v", ev.Kind, ev.Tx, lerr.Code, want)
	}
}

func balanceOf(t *testing.T, s ledger.State, client event.ClientID) ledger.Balance {
	t.Helper()
	balances, err := s.Balances(context.Background())
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	for _, b := range balances {
		if b.Client == client {
			return b
		}
	}
	t.Fatalf("client %s not in snapshot", client)
	return ledger.Balance{}
}

func deposit(client event.ClientID, tx event.TxID, amount string) event.Event {
	return event.Event{Kind: event.KindDeposit, Client: client, Tx: tx, Amount: money.MustParse(amount)}
}

func withdrawal(client event.ClientID, tx event.TxID, amount string) event.Event {
	return event.Event{Kind: event.KindWithdrawal, Client: client, Tx: tx, Amount: money.MustParse(amount)}
}

func dispute(client event.ClientID, tx event.TxID) event.Event {
	return event.Event{Kind: event.KindDispute, Client: client, Tx: tx}
}

func resolve(client event.ClientID, tx event.TxID) event.Event {
	return event.Event{Kind: event.KindResolve, Client: client, Tx: tx}
}

func chargeback(client event.ClientID, tx event.TxID) event.Event {
	return event.Event{Kind: event.KindChargeback, Client: client, Tx: tx}
}

func TestDeposit_FreshClient(t *testing.T) {
	m := ledger.NewMemory()
	apply(t, m, deposit(1, 1, "10.5"))

	b := balanceOf(t, m, 1)
	if b.Available != money.MustParse("10.5") || !b.Held.IsZero() || b.Locked {
		t.Errorf("unexpected balance: %+v", b)
	}
	if b.Total() != money.MustParse("10.5") {
		t.Errorf("total: got %s", b.Total())
	}
}

func TestDeposit_DuplicateTxRejected(t *testing.T) {
	m := ledger.NewMemory()
	apply(t, m, deposit(1, 1, "10"))
	applyErr(t, m, deposit(1, 1, "10"), ledger.CodeDuplicateTransaction)

	// Balances are as after the first deposit only.
	if b := balanceOf(t, m, 1); b.Available != money.MustParse("10") {
		t.Errorf("available: got %s, want 10", b.Available)
	}

	// Even a different client may not reuse a deposit id.
	applyErr(t, m, deposit(2, 1, "3"), ledger.CodeDuplicateTransaction)
}

func TestWithdrawal(t *testing.T) {
	m := ledger.NewMemory()
	apply(t, m, deposit(1, 1, "10"), withdrawal(1, 2, "3.5"))

	if b := balanceOf(t, m, 1); b.Available != money.MustParse("6.5") {
		t.Errorf("available: got %s, want 6.5", b.Available)
	}
}

func TestWithdrawal_InsufficientFunds(t *testing.T) {
	m := ledger.NewMemory()
	apply(t, m, deposit(1, 1, "10"))
	applyErr(t, m, withdrawal(1, 2, "10.0001"), ledger.CodeInsufficientFunds)

	if b := balanceOf(t, m, 1); b.Available != money.MustParse("10") {
		t.Errorf("failed withdrawal mutated balance: %s", b.Available)
	}
}

func TestWithdrawal_UnknownClient(t *testing.T) {
	m := ledger.NewMemory()
	applyErr(t, m, withdrawal(7, 1, "1"), ledger.CodeUnknownClient)
}

func TestWithdrawal_LockedAccount(t *testing.T) {
	m := ledger.NewMemory()
	apply(t, m,
		deposit(1, 1, "10"),
		deposit(1, 2, "5"),
		dispute(1, 2),
		chargeback(1, 2),
	)

	applyErr(t, m, withdrawal(1, 3, "1"), ledger.CodeAccountLocked)

	b := balanceOf(t, m, 1)
	if !b.Locked {
		t.Error("account should be locked after chargeback")
	}
	if b.Available != money.MustParse("10") {
		t.Errorf("available: got %s, want 10", b.Available)
	}
}

func TestDispute_ThenResolve_IsInverse(t *testing.T) {
	m := ledger.NewMemory()
	apply(t, m, deposit(1, 1, "10"), deposit(1, 2, "4"))

	before := balanceOf(t, m, 1)

	apply(t, m, dispute(1, 1))
	mid := balanceOf(t, m, 1)
	if mid.Available != money.MustParse("4") || mid.Held != money.MustParse("10") {
		t.Fatalf("after dispute: %+v", mid)
	}
	if mid.Total() != before.Total() {
		t.Errorf("dispute changed total: %s != %s", mid.Total(), before.Total())
	}

	apply(t, m, resolve(1, 1))
	after := balanceOf(t, m, 1)
	if after.Available != before.Available || after.Held != before.Held {
		t.Errorf("resolve did not restore balances: %+v != %+v", after, before)
	}
}

func TestDispute_ThenChargeback(t *testing.T) {
	m := ledger.NewMemory()
	apply(t, m, deposit(1, 1, "10"), deposit(1, 2, "4"), dispute(1, 1), chargeback(1, 1))

	b := balanceOf(t, m, 1)
	if b.Available != money.MustParse("4") {
		t.Errorf("available: got %s, want 4", b.Available)
	}
	if !b.Held.IsZero() {
		t.Errorf("held: got %s, want 0", b.Held)
	}
	if !b.Locked {
		t.Error("account should be locked")
	}
}

func TestDispute_UnknownTxIsNoOp(t *testing.T) {
	m := ledger.NewMemory()
	apply(t, m, deposit(1, 1, "10"))
	apply(t, m, dispute(1, 99)) // no error

	if b := balanceOf(t, m, 1); b.Available != money.MustParse("10") || !b.Held.IsZero() {
		t.Errorf("no-op dispute mutated state: %+v", b)
	}
}

func TestDispute_WithdrawalIsIllegal(t *testing.T) {
	m := ledger.NewMemory()
	apply(t, m, deposit(1, 1, "10"), withdrawal(1, 2, "3"))
	applyErr(t, m, dispute(1, 2), ledger.CodeIllegalDispute)
}

func TestDispute_Twice(t *testing.T) {
	m := ledger.NewMemory()
	apply(t, m, deposit(1, 1, "10"), dispute(1, 1))
	applyErr(t, m, dispute(1, 1), ledger.CodeDoubleDispute)

	// Still exactly one deposit's worth on hold.
	if b := balanceOf(t, m, 1); b.Held != money.MustParse("10") {
		t.Errorf("held: got %s, want 10", b.Held)
	}
}

// A dispute the available balance cannot cover is rejected: the unsigned
// representation has no negative values, so the ledger refuses to wrap.
func TestDispute_SpentDepositRejected(t *testing.T) {
	m := ledger.NewMemory()
	apply(t, m, deposit(1, 1, "10"), withdrawal(1, 2, "3"))

	applyErr(t, m, dispute(1, 1), ledger.CodeInsufficientFunds)

	b := balanceOf(t, m, 1)
	if b.Available != money.MustParse("7") || !b.Held.IsZero() {
		t.Errorf("rejected dispute mutated state: %+v", b)
	}

	// The record is not marked disputed, so a later resolve is a no-op.
	apply(t, m, resolve(1, 1))
	if b := balanceOf(t, m, 1); b.Available != money.MustParse("7") {
		t.Errorf("resolve after rejected dispute mutated state: %+v", b)
	}
}

func TestResolve_NotDisputedIsNoOp(t *testing.T) {
	m := ledger.NewMemory()
	apply(t, m, deposit(1, 1, "10"))
	apply(t, m, resolve(1, 1), resolve(1, 99))

	if b := balanceOf(t, m, 1); b.Available != money.MustParse("10") || !b.Held.IsZero() {
		t.Errorf("no-op resolve mutated state: %+v", b)
	}
}

func TestChargeback_NotDisputedIsNoOp(t *testing.T) {
	m := ledger.NewMemory()
	apply(t, m, deposit(1, 1, "10"))
	apply(t, m, chargeback(1, 1), chargeback(1, 99))

	if b := balanceOf(t, m, 1); b.Locked {
		t.Error("no-op chargeback locked the account")
	}
}

func TestResolve_ThenDisputeAgain(t *testing.T) {
	m := ledger.NewMemory()
	apply(t, m, deposit(1, 1, "10"), dispute(1, 1), resolve(1, 1), dispute(1, 1))

	b := balanceOf(t, m, 1)
	if !b.Available.IsZero() || b.Held != money.MustParse("10") {
		t.Errorf("re-dispute after resolve: %+v", b)
	}
}

func TestBalances_SortedByClient(t *testing.T) {
	m := ledger.NewMemory()
	apply(t, m, deposit(30, 1, "1"), deposit(2, 2, "1"), deposit(17, 3, "1"))

	balances, err := m.Balances(context.Background())
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(balances) != 3 {
		t.Fatalf("got %d rows, want 3", len(balances))
	}
	for i := 1; i < len(balances); i++ {
		if balances[i-1].Client >= balances[i].Client {
			t.Fatalf("snapshot not sorted: %v", balances)
		}
	}
}

// The full scenario: deposit, withdraw, then dispute the already partly
// spent deposit.
func TestEndToEndScenario(t *testing.T) {
	m := ledger.NewMemory()

	apply(t, m, deposit(1, 1, "10.0"))
	if b := balanceOf(t, m, 1); b.Available != money.MustParse("10") || !b.Held.IsZero() {
		t.Fatalf("after deposit: %+v", b)
	}

	apply(t, m, withdrawal(1, 2, "3.0"))
	if b := balanceOf(t, m, 1); b.Available != money.MustParse("7") {
		t.Fatalf("after withdrawal: %+v", b)
	}

	// Disputing tx 1 would need 10.0 of available but only 7.0 remains.
	applyErr(t, m, dispute(1, 1), ledger.CodeInsufficientFunds)
	b := balanceOf(t, m, 1)
	if b.Available != money.MustParse("7") || !b.Held.IsZero() || b.Locked {
		t.Fatalf("after rejected dispute: %+v", b)
	}
}
