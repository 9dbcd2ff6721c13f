package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"PayLedger/internal/event"
	"PayLedger/internal/ledger"
	"PayLedger/internal/money"
	"PayLedger/internal/observability"
)

// Postgres is a ledger.State backed by the clients and transactions
// tables. Each Apply runs in a single transaction with row locks, so the
// validate-then-mutate contract holds across restarts. Business
// rejections surface as typed ledger errors; everything else is wrapped
// as a backend error.
type Postgres struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return NewPostgres(db), nil
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{
		db:  db,
		log: observability.NewLogger("postgres"),
	}
}

// DB exposes the underlying pool, for the migrator and tests.
func (p *Postgres) DB() *sql.DB { return p.db }

func (p *Postgres) Close() error { return p.db.Close() }

// dbAmount converts an amount to the BIGINT column representation.
func dbAmount(a money.Amount) (int64, error) {
	if uint64(a) > math.MaxInt64 {
		return 0, fmt.Errorf("amount %s exceeds storable range", a)
	}
	return int64(a), nil
}

// Apply runs one event inside a transaction.
func (p *Postgres) Apply(ctx context.Context, ev event.Event) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.BackendError(ev.Client, ev.Tx, err)
	}
	defer tx.Rollback()

	switch ev.Kind {
	case event.KindDeposit:
		err = p.deposit(ctx, tx, ev)
	case event.KindWithdrawal:
		err = p.withdraw(ctx, tx, ev)
	case event.KindDispute:
		err = p.dispute(ctx, tx, ev)
	case event.KindResolve:
		err = p.resolve(ctx, tx, ev)
	case event.KindChargeback:
		err = p.chargeback(ctx, tx, ev)
	default:
		return ledger.BackendError(ev.Client, ev.Tx, fmt.Errorf("unhandled event kind %d", ev.Kind))
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return ledger.BackendError(ev.Client, ev.Tx, err)
	}
	return nil
}

func (p *Postgres) deposit(ctx context.Context, tx *sql.Tx, ev event.Event) error {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE tx_id = $1)`, int64(ev.Tx),
	).Scan(&exists)
	if err != nil {
		return ledger.BackendError(ev.Client, ev.Tx, err)
	}
	if exists {
		return ledger.NewError(ledger.CodeDuplicateTransaction, ev.Client, ev.Tx)
	}

	amount, err := dbAmount(ev.Amount)
	if err != nil {
		return ledger.BackendError(ev.Client, ev.Tx, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO clients (client_id, available) VALUES ($1, $2)
		ON CONFLICT (client_id) DO UPDATE SET available = clients.available + EXCLUDED.available`,
		int64(ev.Client), amount,
	)
	if err != nil {
		return ledger.BackendError(ev.Client, ev.Tx, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (tx_id, client_id, kind, amount) VALUES ($1, $2, $3, $4)`,
		int64(ev.Tx), int64(ev.Client), int16(ev.Kind), amount,
	)
	if err != nil {
		return ledger.BackendError(ev.Client, ev.Tx, err)
	}
	return nil
}

func (p *Postgres) withdraw(ctx context.Context, tx *sql.Tx, ev event.Event) error {
	var available int64
	var locked bool
	err := tx.QueryRowContext(ctx,
		`SELECT available, locked FROM clients WHERE client_id = $1 FOR UPDATE`, int64(ev.Client),
	).Scan(&available, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.NewError(ledger.CodeUnknownClient, ev.Client, ev.Tx)
	}
	if err != nil {
		return ledger.BackendError(ev.Client, ev.Tx, err)
	}

	amount, err := dbAmount(ev.Amount)
	if err != nil {
		return ledger.BackendError(ev.Client, ev.Tx, err)
	}
	if available < amount {
		return ledger.NewError(ledger.CodeInsufficientFunds, ev.Client, ev.Tx)
	}
	if locked {
		return ledger.NewError(ledger.CodeAccountLocked, ev.Client, ev.Tx)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE clients SET available = available - $2 WHERE client_id = $1`,
		int64(ev.Client), amount,
	)
	if err != nil {
		return ledger.BackendError(ev.Client, ev.Tx, err)
	}

	// Record fresh withdrawal ids so later disputes against them are
	// distinguishable from unknown transactions.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (tx_id, client_id, kind, amount) VALUES ($1, $2, $3, $4)
		ON CONFLICT (tx_id) DO NOTHING`,
		int64(ev.Tx), int64(ev.Client), int16(ev.Kind), amount,
	)
	if err != nil {
		return ledger.BackendError(ev.Client, ev.Tx, err)
	}
	return nil
}

// record is a transactions row loaded for the dispute lifecycle.
type record struct {
	client   event.ClientID
	kind     event.Kind
	amount   int64
	disputed bool
}

// lockRecord loads and locks the transactions row. found=false means the
// tx id was never seen, which the dispute lifecycle treats as a no-op.
func (p *Postgres) lockRecord(ctx context.Context, tx *sql.Tx, ev event.Event) (rec record, found bool, err error) {
	var client int64
	var kind int16
	err = tx.QueryRowContext(ctx,
		`SELECT client_id, kind, amount, disputed FROM transactions WHERE tx_id = $1 FOR UPDATE`,
		int64(ev.Tx),
	).Scan(&client, &kind, &rec.amount, &rec.disputed)
	if errors.Is(err, sql.ErrNoRows) {
		return record{}, false, nil
	}
	if err != nil {
		return record{}, false, ledger.BackendError(ev.Client, ev.Tx, err)
	}
	rec.client = event.ClientID(client)
	rec.kind = event.Kind(kind)
	return rec, true, nil
}

func (p *Postgres) dispute(ctx context.Context, tx *sql.Tx, ev event.Event) error {
	rec, found, err := p.lockRecord(ctx, tx, ev)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if rec.kind != event.KindDeposit {
		return ledger.NewError(ledger.CodeIllegalDispute, ev.Client, ev.Tx)
	}
	if rec.disputed {
		return ledger.NewError(ledger.CodeDoubleDispute, ev.Client, ev.Tx)
	}

	var available int64
	err = tx.QueryRowContext(ctx,
		`SELECT available FROM clients WHERE client_id = $1 FOR UPDATE`, int64(rec.client),
	).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.NewError(ledger.CodeUnknownClient, ev.Client, ev.Tx)
	}
	if err != nil {
		return ledger.BackendError(ev.Client, ev.Tx, err)
	}
	if available < rec.amount {
		return ledger.NewError(ledger.CodeInsufficientFunds, ev.Client, ev.Tx)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE clients SET available = available - $2, held = held + $2 WHERE client_id = $1`,
		int64(rec.client), rec.amount,
	); err != nil {
		return ledger.BackendError(ev.Client, ev.Tx, err)
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE transactions SET disputed = TRUE WHERE tx_id = $1`, int64(ev.Tx),
	); err != nil {
		return ledger.BackendError(ev.Client, ev.Tx, err)
	}
	return nil
}

func (p *Postgres) resolve(ctx context.Context, tx *sql.Tx, ev event.Event) error {
	rec, found, err := p.lockRecord(ctx, tx, ev)
	if err != nil {
		return err
	}
	if !found || !rec.disputed {
		return nil
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE clients SET held = held - $2, available = available + $2 WHERE client_id = $1`,
		int64(rec.client), rec.amount,
	)
	if err != nil {
		return ledger.BackendError(ev.Client, ev.Tx, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.NewError(ledger.CodeUnknownClient, ev.Client, ev.Tx)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE transactions SET disputed = FALSE WHERE tx_id = $1`, int64(ev.Tx),
	); err != nil {
		return ledger.BackendError(ev.Client, ev.Tx, err)
	}
	return nil
}

func (p *Postgres) chargeback(ctx context.Context, tx *sql.Tx, ev event.Event) error {
	rec, found, err := p.lockRecord(ctx, tx, ev)
	if err != nil {
		return err
	}
	if !found || !rec.disputed {
		return nil
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE clients SET held = held - $2, locked = TRUE WHERE client_id = $1`,
		int64(rec.client), rec.amount,
	)
	if err != nil {
		return ledger.BackendError(ev.Client, ev.Tx, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.NewError(ledger.CodeUnknownClient, ev.Client, ev.Tx)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE transactions SET disputed = FALSE WHERE tx_id = $1`, int64(ev.Tx),
	); err != nil {
		return ledger.BackendError(ev.Client, ev.Tx, err)
	}
	return nil
}

// Balances returns one row per client ever seen, sorted by client id.
func (p *Postgres) Balances(ctx context.Context) ([]ledger.Balance, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT client_id, available, held, locked FROM clients ORDER BY client_id`)
	if err != nil {
		return nil, ledger.BackendError(0, 0, err)
	}
	defer rows.Close()

	var balances []ledger.Balance
	for rows.Next() {
		var client, available, held int64
		var locked bool
		if err := rows.Scan(&client, &available, &held, &locked); err != nil {
			return nil, ledger.BackendError(0, 0, err)
		}
		balances = append(balances, ledger.Balance{
			Client:    event.ClientID(client),
			Available: money.Amount(available),
			Held:      money.Amount(held),
			Locked:    locked,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.BackendError(0, 0, err)
	}
	return balances, nil
}

// StartRun records the beginning of a driver run.
func (p *Postgres) StartRun(ctx context.Context, runID uuid.UUID) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at) VALUES ($1, NOW())`, runID)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun closes out a run record with its counters.
func (p *Postgres) FinishRun(ctx context.Context, runID uuid.UUID, applied, rejected uint64) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = NOW(), events_applied = $2, events_rejected = $3
		WHERE run_id = $1`,
		runID, int64(applied), int64(rejected))
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}
