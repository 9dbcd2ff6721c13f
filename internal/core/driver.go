package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PayLedger/internal/event"
	"PayLedger/internal/ledger"
	"PayLedger/internal/observability"
)

// Driver is the single-threaded event processor. It drains an event
// channel, applies each event to the ledger state in arrival order, and
// forwards rejections to an optional error sink.
type Driver struct {
	runID   uuid.UUID
	state   ledger.State
	sink    *ErrorSink
	metrics *observability.Metrics
	log     zerolog.Logger

	applied  uint64
	rejected uint64
}

// NewDriver creates a driver for one run over state. sink and metrics
// may be nil.
func NewDriver(state ledger.State, sink *ErrorSink, metrics *observability.Metrics) *Driver {
	runID := uuid.New()
	return &Driver{
		runID:   runID,
		state:   state,
		sink:    sink,
		metrics: metrics,
		log:     observability.NewLogger("driver").With().Str("run_id", runID.String()).Logger(),
	}
}

// RunID identifies this processing run.
func (d *Driver) RunID() uuid.UUID {
	return d.runID
}

// Applied returns how many events this run applied successfully.
func (d *Driver) Applied() uint64 { return d.applied }

// Rejected returns how many events this run rejected.
func (d *Driver) Rejected() uint64 { return d.rejected }

// Run processes events until the channel is closed or ctx is cancelled.
// Business rejections are reported to the sink and processing continues;
// a closed sink ends the run early without error. Backend failures abort
// the run. The sink's report channel is closed when Run returns.
func (d *Driver) Run(ctx context.Context, events <-chan event.Event) error {
	if d.sink != nil {
		defer d.sink.finish()
	}

	d.log.Info().Msg("run started")

	for {
		select {
		case <-ctx.Done():
			d.logSummary()
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				d.logSummary()
				return nil
			}

			stop, err := d.process(ctx, ev)
			if err != nil {
				d.logSummary()
				return err
			}
			if stop {
				d.log.Info().Msg("error sink closed, ending run")
				d.logSummary()
				return nil
			}
		}
	}
}

// process applies one event. It returns stop=true when the sink consumer
// has hung up, and a non-nil error only for backend failures.
func (d *Driver) process(ctx context.Context, ev event.Event) (stop bool, err error) {
	start := time.Now()
	kind := ev.Kind.String()

	applyErr := d.state.Apply(ctx, ev)
	if applyErr == nil {
		d.applied++
		if d.metrics != nil {
			d.metrics.EventsApplied.WithLabelValues(kind).Inc()
			d.metrics.ApplyDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		}
		return false, nil
	}

	var lerr *ledger.Error
	if !errors.As(applyErr, &lerr) {
		lerr = ledger.BackendError(ev.Client, ev.Tx, applyErr)
	}

	if lerr.Code == ledger.CodeBackend {
		return false, fmt.Errorf("apply %s tx %s: %w", kind, ev.Tx, lerr)
	}

	d.rejected++
	if d.metrics != nil {
		d.metrics.EventsRejected.WithLabelValues(kind, lerr.Code.String()).Inc()
	}

	if d.sink == nil {
		d.log.Debug().
			Str("kind", kind).
			Str("client", ev.Client.String()).
			Str("tx", ev.Tx.String()).
			Str("code", lerr.Code.String()).
			Msg("event rejected")
		return false, nil
	}

	if !d.sink.send(lerr) {
		if d.metrics != nil {
			d.metrics.SinkDropped.Inc()
		}
		return true, nil
	}
	if d.metrics != nil {
		d.metrics.SinkReports.Inc()
		d.metrics.SinkDepth.Set(float64(d.sink.depth()))
	}
	return false, nil
}

func (d *Driver) logSummary() {
	d.log.Info().
		Uint64("applied", d.applied).
		Uint64("rejected", d.rejected).
		Msg("run finished")
}
