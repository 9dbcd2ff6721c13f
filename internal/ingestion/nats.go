package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"PayLedger/internal/event"
	"PayLedger/internal/observability"
)

const (
	// StreamName is the JetStream stream carrying payment events.
	StreamName = "PAY_EVENTS"

	// SubjectRoot matches all event subjects (pay.events.<kind>).
	SubjectRoot = "pay.events.>"

	consumerName = "payledger"
)

// RawEvent is an undecoded message pulled from the stream, carrying its
// ack handles so the subscriber loop controls redelivery.
type RawEvent struct {
	Subject  string
	Data     []byte
	Received time.Time
	Ack      func()
	Nak      func()
}

// NATSSubscriber feeds JetStream messages into a RawEvent channel.
type NATSSubscriber struct {
	js       jetstream.JetStream
	rawChan  chan<- RawEvent
	consumer jetstream.ConsumeContext
	log      zerolog.Logger
	metrics  *observability.Metrics
}

func NewNATSSubscriber(js jetstream.JetStream, rawChan chan<- RawEvent, metrics *observability.Metrics) *NATSSubscriber {
	return &NATSSubscriber{
		js:      js,
		rawChan: rawChan,
		log:     observability.NewLogger("nats"),
		metrics: metrics,
	}
}

// EnsureStream creates the PAY_EVENTS stream if it does not exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectRoot},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	return nil
}

// Subscribe creates the durable consumer and starts delivery. Consumers
// use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := ns.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: SubjectRoot,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		raw := RawEvent{
			Subject:  msg.Subject(),
			Data:     msg.Data(),
			Received: time.Now(),
			Ack:      func() { msg.Ack() },
			Nak:      func() { msg.Nak() },
		}

		if ns.metrics != nil {
			ns.metrics.IngestMessages.WithLabelValues(raw.Subject).Inc()
		}

		select {
		case ns.rawChan <- raw:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", consumerName, err)
	}

	ns.consumer = consumeCtx
	ns.log.Info().Str("subject", SubjectRoot).Str("consumer", consumerName).Msg("subscribed")
	return nil
}

// Stop halts delivery.
func (ns *NATSSubscriber) Stop() {
	if ns.consumer != nil {
		ns.consumer.Stop()
	}
	ns.log.Info().Msg("subscriber stopped")
}

// RunIngest decodes raw messages and forwards typed events to out, in
// arrival order. Payloads that do not decode are acked and dropped: a
// malformed message never decodes on redelivery either. The out channel
// is closed when rawChan closes or ctx ends.
func RunIngest(ctx context.Context, rawChan <-chan RawEvent, out chan<- event.Event, metrics *observability.Metrics) error {
	log := observability.NewLogger("ingest")
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-rawChan:
			if !ok {
				return nil
			}

			ev, err := ParseEvent(raw.Data)
			if err != nil {
				log.Warn().Str("subject", raw.Subject).Err(err).Msg("dropping malformed message")
				if metrics != nil {
					metrics.IngestMalformed.Inc()
				}
				raw.Ack()
				continue
			}

			select {
			case out <- ev:
				raw.Ack()
				if metrics != nil {
					metrics.IngestLag.Observe(time.Since(raw.Received).Seconds())
				}
			case <-ctx.Done():
				raw.Nak()
				return ctx.Err()
			}
		}
	}
}

// ConnectNATS establishes a connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	log := observability.NewLogger("nats")

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
