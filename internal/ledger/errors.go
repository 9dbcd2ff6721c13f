package ledger

import (
	"fmt"

	"PayLedger/internal/event"
)

// Code discriminates the hard failures a ledger can report. No-op cases
// (disputing an unknown transaction, resolving something not under dispute)
// are absorbed without an error; they indicate bad data on a partner's side,
// not corruption on ours.
type Code int32

const (
	CodeUnknown Code = iota
	CodeDuplicateTransaction
	CodeInsufficientFunds
	CodeAccountLocked
	CodeIllegalDispute
	CodeDoubleDispute
	CodeUnknownClient
	CodeBackend
)

func (c Code) String() string {
	switch c {
	case CodeDuplicateTransaction:
		return "duplicate_transaction"
	case CodeInsufficientFunds:
		return "insufficient_funds"
	case CodeAccountLocked:
		return "account_locked"
	case CodeIllegalDispute:
		return "illegal_dispute"
	case CodeDoubleDispute:
		return "double_dispute"
	case CodeUnknownClient:
		return "unknown_client"
	case CodeBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by State.Apply. Alternative backings
// report their own failures through CodeBackend with the driver error
// wrapped underneath.
type Error struct {
	Code   Code
	Client event.ClientID
	Tx     event.TxID
	cause  error
}

func NewError(code Code, client event.ClientID, tx event.TxID) *Error {
	return &Error{Code: code, Client: client, Tx: tx}
}

// BackendError wraps a storage-level failure from a non-memory backing.
func BackendError(client event.ClientID, tx event.TxID, cause error) *Error {
	return &Error{Code: CodeBackend, Client: client, Tx: tx, cause: cause}
}

func (e *Error) Error() string {
	switch e.Code {
	case CodeDuplicateTransaction:
		return fmt.Sprintf("transaction %s reuses an already-seen deposit id", e.Tx)
	case CodeInsufficientFunds:
		return fmt.Sprintf("client %s has insufficient funds for transaction %s", e.Client, e.Tx)
	case CodeAccountLocked:
		return fmt.Sprintf("client %s cannot withdraw per transaction %s because their account is locked", e.Client, e.Tx)
	case CodeIllegalDispute:
		return fmt.Sprintf("client %s attempted to dispute transaction %s, but only deposits may be disputed", e.Client, e.Tx)
	case CodeDoubleDispute:
		return fmt.Sprintf("client %s attempted to dispute transaction %s, which is already under dispute", e.Client, e.Tx)
	case CodeUnknownClient:
		return fmt.Sprintf("client %s does not exist", e.Client)
	case CodeBackend:
		return fmt.Sprintf("ledger backend: %v", e.cause)
	default:
		return fmt.Sprintf("ledger error %d (client %s, tx %s)", e.Code, e.Client, e.Tx)
	}
}

// Unwrap exposes the wrapped backend failure, if any.
func (e *Error) Unwrap() error {
	return e.cause
}
