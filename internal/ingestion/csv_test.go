package ingestion

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"PayLedger/internal/event"
	"PayLedger/internal/money"
)

func TestCSVSource_ReadsEvents(t *testing.T) {
	input := strings.Join([]string{
		"type,client,tx,amount",
		"deposit, 1, 1, 10.5",
		"withdrawal,1,2,3.0",
		"dispute,1,1,",
		"resolve, 1, 1,",
		"chargeback,1,1,",
	}, "\n")

	src, err := NewCSVSource(strings.NewReader(input))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	want := []event.Event{
		{Kind: event.KindDeposit, Client: 1, Tx: 1, Amount: money.MustParse("10.5")},
		{Kind: event.KindWithdrawal, Client: 1, Tx: 2, Amount: money.MustParse("3")},
		{Kind: event.KindDispute, Client: 1, Tx: 1},
		{Kind: event.KindResolve, Client: 1, Tx: 1},
		{Kind: event.KindChargeback, Client: 1, Tx: 1},
	}

	for i, w := range want {
		ev, err := src.Next()
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if ev != w {
			t.Errorf("event %d: got %+v, want %+v", i, ev, w)
		}
	}

	if _, err := src.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("after last row: got %v, want EOF", err)
	}
}

func TestCSVSource_ShortRowsForAmountlessKinds(t *testing.T) {
	input := "type,client,tx,amount\ndispute,1,1\n"

	src, err := NewCSVSource(strings.NewReader(input))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	ev, err := src.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if ev.Kind != event.KindDispute || !ev.Amount.IsZero() {
		t.Errorf("got %+v", ev)
	}
}

func TestCSVSource_RecordErrors(t *testing.T) {
	tests := []struct {
		name string
		row  string
	}{
		{"unknown kind", "transfer,1,1,5.0"},
		{"missing amount", "deposit,1,1,"},
		{"bad amount", "deposit,1,1,12."},
		{"negative amount", "deposit,1,1,-3"},
		{"client overflow", "deposit,65536,1,5.0"},
		{"tx overflow", "deposit,1,4294967296,5.0"},
		{"garbage client", "deposit,abc,1,5.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewCSVSource(strings.NewReader("type,client,tx,amount\n" + tt.row + "\n"))
			if err != nil {
				t.Fatalf("new source: %v", err)
			}

			_, err = src.Next()
			var rerr *RecordError
			if !errors.As(err, &rerr) {
				t.Fatalf("got %v, want record error", err)
			}
			if rerr.Record != 2 {
				t.Errorf("record number: got %d, want 2", rerr.Record)
			}
		})
	}
}

func TestCSVSource_MissingHeaderColumn(t *testing.T) {
	_, err := NewCSVSource(strings.NewReader("type,client,amount\n"))
	if err == nil {
		t.Fatal("want header error, got nil")
	}
}

func TestCSVSource_StreamSkipsMalformed(t *testing.T) {
	input := strings.Join([]string{
		"type,client,tx,amount",
		"deposit,1,1,10.0",
		"transfer,1,2,5.0",
		"deposit,1,3,2.0",
	}, "\n")

	src, err := NewCSVSource(strings.NewReader(input))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	out := make(chan event.Event, 4)
	if err := src.Stream(context.Background(), out, zerolog.Nop()); err != nil {
		t.Fatalf("stream: %v", err)
	}

	var got []event.Event
	for ev := range out {
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Tx != 1 || got[1].Tx != 3 {
		t.Errorf("wrong events survived: %+v", got)
	}
}
