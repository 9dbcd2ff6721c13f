package event

import (
	"fmt"
	"strconv"
	"strings"

	"PayLedger/internal/money"
)

// ClientID uniquely identifies a client. It is known to be a valid uint16 and
// carries only identifier semantics: equality and ordering, no arithmetic.
type ClientID uint16

// ParseClientID parses the decimal wire form of a client id.
func ParseClientID(s string) (ClientID, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("client id %q: %w", s, err)
	}
	return ClientID(v), nil
}

func (id ClientID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// TxID uniquely identifies a transaction. It is known to be a valid uint32
// and carries only identifier semantics.
type TxID uint32

// ParseTxID parses the decimal wire form of a transaction id.
func ParseTxID(s string) (TxID, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("transaction id %q: %w", s, err)
	}
	return TxID(v), nil
}

func (id TxID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Kind identifies the nature of a transaction event.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindDeposit
	KindWithdrawal
	KindDispute
	KindResolve
	KindChargeback
)

// ParseKind parses the wire form of an event kind. The canonical form is
// lowercase; matching is case-insensitive.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deposit":
		return KindDeposit, nil
	case "withdrawal":
		return KindWithdrawal, nil
	case "dispute":
		return KindDispute, nil
	case "resolve":
		return KindResolve, nil
	case "chargeback":
		return KindChargeback, nil
	default:
		return KindUnknown, fmt.Errorf("unknown event kind: %q", s)
	}
}

func (k Kind) String() string {
	switch k {
	case KindDeposit:
		return "deposit"
	case KindWithdrawal:
		return "withdrawal"
	case KindDispute:
		return "dispute"
	case KindResolve:
		return "resolve"
	case KindChargeback:
		return "chargeback"
	default:
		return "unknown"
	}
}

// CarriesAmount reports whether an event of this kind has a meaningful
// amount. Dispute, resolve and chargeback reference a prior deposit's amount
// by transaction id; any amount supplied with them is ignored.
func (k Kind) CarriesAmount() bool {
	return k == KindDeposit || k == KindWithdrawal
}

// Event is the fundamental unit of data flowing through the system: an
// atomic unit of state change.
type Event struct {
	Kind   Kind
	Client ClientID
	Tx     TxID
	Amount money.Amount
}
