package ingestion

import (
	"encoding/json"
	"fmt"

	"PayLedger/internal/event"
	"PayLedger/internal/money"
)

// eventJSON is the wire format received on pay.events.<kind> subjects.
// The amount is decoded lazily: dispute/resolve/chargeback producers may
// omit it or send an empty string, and either is ignored.
type eventJSON struct {
	Type   string          `json:"type"`
	Client string          `json:"client"`
	Tx     string          `json:"tx"`
	Amount json.RawMessage `json:"amount"`
}

// ParseEvent converts a JSON payload into a typed event.
func ParseEvent(data []byte) (event.Event, error) {
	var j eventJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return event.Event{}, fmt.Errorf("decode event: %w", err)
	}

	kind, err := event.ParseKind(j.Type)
	if err != nil {
		return event.Event{}, err
	}

	client, err := event.ParseClientID(j.Client)
	if err != nil {
		return event.Event{}, fmt.Errorf("parse client: %w", err)
	}
	tx, err := event.ParseTxID(j.Tx)
	if err != nil {
		return event.Event{}, fmt.Errorf("parse tx: %w", err)
	}

	ev := event.Event{Kind: kind, Client: client, Tx: tx}
	if kind.CarriesAmount() {
		if len(j.Amount) == 0 {
			return event.Event{}, fmt.Errorf("%s requires an amount", kind)
		}
		var amount money.Amount
		if err := json.Unmarshal(j.Amount, &amount); err != nil {
			return event.Event{}, fmt.Errorf("parse amount: %w", err)
		}
		ev.Amount = amount
	}
	return ev, nil
}
