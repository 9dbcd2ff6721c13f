package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"PayLedger/internal/ledger"
)

// WriteSnapshot renders the final balance snapshot as CSV. One row per
// client ever seen, sorted by client id (the State contract), total
// derived from available and held.
func WriteSnapshot(ctx context.Context, w io.Writer, state ledger.State) error {
	balances, err := state.Balances(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"client", "available", "held", "total", "locked"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, b := range balances {
		row := []string{
			b.Client.String(),
			b.Available.String(),
			b.Held.String(),
			b.Total().String(),
			strconv.FormatBool(b.Locked),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write client %s: %w", b.Client, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
