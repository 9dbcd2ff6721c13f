package event_test

import (
	"testing"

	"PayLedger/internal/event"
)

func TestParseKind(t *testing.T) {
	cases := []struct {
		in   string
		want event.Kind
	}{
		{"deposit", event.KindDeposit},
		{"withdrawal", event.KindWithdrawal},
		{"dispute", event.KindDispute},
		{"resolve", event.KindResolve},
		{"chargeback", event.KindChargeback},
		{"Deposit", event.KindDeposit},
		{"CHARGEBACK", event.KindChargeback},
		{" resolve ", event.KindResolve},
	}
	for _, c := range cases {
		got, err := event.ParseKind(c.in)
		if err != nil {
			t.Errorf("ParseKind(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseKind(%q): got %v, want %v", c.in, got, c.want)
		}
	}

	if _, err := event.ParseKind("transfer"); err == nil {
		t.Error("ParseKind(\"transfer\"): want error")
	}
	if _, err := event.ParseKind(""); err == nil {
		t.Error("ParseKind(\"\"): want error")
	}
}

func TestKindCarriesAmount(t *testing.T) {
	carries := map[event.Kind]bool{
		event.KindDeposit:    true,
		event.KindWithdrawal: true,
		event.KindDispute:    false,
		event.KindResolve:    false,
		event.KindChargeback: false,
	}
	for k, want := range carries {
		if got := k.CarriesAmount(); got != want {
			t.Errorf("%v.CarriesAmount(): got %v, want %v", k, got, want)
		}
	}
}

func TestParseIDs(t *testing.T) {
	if id, err := event.ParseClientID("65535"); err != nil || id != 65535 {
		t.Errorf("ParseClientID(65535): got %v, %v", id, err)
	}
	if _, err := event.ParseClientID("65536"); err == nil {
		t.Error("ParseClientID(65536): want range error")
	}
	if _, err := event.ParseClientID("-1"); err == nil {
		t.Error("ParseClientID(-1): want error")
	}

	if id, err := event.ParseTxID("4294967295"); err != nil || id != 4294967295 {
		t.Errorf("ParseTxID(4294967295): got %v, %v", id, err)
	}
	if _, err := event.ParseTxID("4294967296"); err == nil {
		t.Error("ParseTxID(4294967296): want range error")
	}
}
