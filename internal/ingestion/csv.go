package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"PayLedger/internal/event"
	"PayLedger/internal/money"
)

// CSVSource reads events from a `type,client,tx,amount` CSV document.
// Fields tolerate surrounding whitespace. The amount column is required
// for deposits and withdrawals and ignored for the other kinds.
type CSVSource struct {
	r      *csv.Reader
	cols   csvColumns
	record int
}

type csvColumns struct {
	kind   int
	client int
	tx     int
	amount int
}

// RecordError marks a row that could not be converted into an event.
// The surrounding rows are unaffected.
type RecordError struct {
	Record int
	cause  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Record, e.cause)
}

func (e *RecordError) Unwrap() error { return e.cause }

// NewCSVSource wraps r and consumes the header row.
func NewCSVSource(r io.Reader) (*CSVSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := csvColumns{kind: -1, client: -1, tx: -1, amount: -1}
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "type":
			cols.kind = i
		case "client":
			cols.client = i
		case "tx":
			cols.tx = i
		case "amount":
			cols.amount = i
		}
	}
	if cols.kind < 0 || cols.client < 0 || cols.tx < 0 {
		return nil, fmt.Errorf("header missing required columns: %q", header)
	}

	return &CSVSource{r: cr, cols: cols, record: 1}, nil
}

// Next returns the next event. It returns io.EOF at end of input and a
// *RecordError for rows that do not convert; the source remains usable
// after a record error.
func (s *CSVSource) Next() (event.Event, error) {
	row, err := s.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return event.Event{}, io.EOF
		}
		s.record++
		return event.Event{}, &RecordError{Record: s.record, cause: err}
	}
	s.record++

	ev, err := s.convert(row)
	if err != nil {
		return event.Event{}, &RecordError{Record: s.record, cause: err}
	}
	return ev, nil
}

func (s *CSVSource) convert(row []string) (event.Event, error) {
	field := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	kind, err := event.ParseKind(field(s.cols.kind))
	if err != nil {
		return event.Event{}, err
	}

	client, err := event.ParseClientID(field(s.cols.client))
	if err != nil {
		return event.Event{}, fmt.Errorf("client: %w", err)
	}
	tx, err := event.ParseTxID(field(s.cols.tx))
	if err != nil {
		return event.Event{}, fmt.Errorf("tx: %w", err)
	}

	ev := event.Event{Kind: kind, Client: client, Tx: tx}
	if kind.CarriesAmount() {
		raw := field(s.cols.amount)
		if raw == "" {
			return event.Event{}, fmt.Errorf("%s requires an amount", kind)
		}
		amount, err := money.Parse(raw)
		if err != nil {
			return event.Event{}, fmt.Errorf("amount: %w", err)
		}
		ev.Amount = amount
	}
	return ev, nil
}

// Stream sends every well-formed row to out in order. Malformed rows are
// logged and skipped. The out channel is closed when the input ends.
func (s *CSVSource) Stream(ctx context.Context, out chan<- event.Event, log zerolog.Logger) error {
	defer close(out)

	for {
		ev, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			var rerr *RecordError
			if errors.As(err, &rerr) {
				log.Warn().Int("record", rerr.Record).Err(rerr.Unwrap()).Msg("skipping malformed record")
				continue
			}
			return err
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
