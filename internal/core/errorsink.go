package core

import (
	"sync"

	"PayLedger/internal/ledger"
)

// ErrorSink is a bounded channel carrying rejection reports from the
// driver to an interested consumer. The producer side blocks when the
// buffer is full, so a slow consumer applies backpressure to event
// processing rather than losing reports.
//
// The consumer signals disinterest by calling Close. After that, sends
// fail immediately and the driver stops reporting. A sink belongs to a
// single Run.
type ErrorSink struct {
	reports chan *ledger.Error
	done    chan struct{}

	closeOnce  sync.Once
	finishOnce sync.Once
}

// NewErrorSink creates a sink buffering up to capacity reports.
func NewErrorSink(capacity int) *ErrorSink {
	return &ErrorSink{
		reports: make(chan *ledger.Error, capacity),
		done:    make(chan struct{}),
	}
}

// Reports returns the consumer side of the sink. The channel is closed
// when the driver's run ends, so a range loop over it terminates.
func (s *ErrorSink) Reports() <-chan *ledger.Error {
	return s.reports
}

// Close tells the producer the consumer is gone. Buffered reports may
// still be drained; new sends fail.
func (s *ErrorSink) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// send delivers a report, blocking while the buffer is full. It returns
// false once the sink is closed. A closed sink wins over a free buffer
// slot.
func (s *ErrorSink) send(e *ledger.Error) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.reports <- e:
		return true
	case <-s.done:
		return false
	}
}

// finish closes the report channel once the producing run has ended.
func (s *ErrorSink) finish() {
	s.finishOnce.Do(func() {
		close(s.reports)
	})
}

// depth reports how many reports are currently buffered.
func (s *ErrorSink) depth() int {
	return len(s.reports)
}
