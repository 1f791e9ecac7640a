package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Exporter publishes LifecycleEvents onto a durable AMQP topic, the
// same Publisher/factory shape as the teacher's adapter/pubsub package.
type Exporter struct {
	log   watermill.LoggerAdapter
	pub   message.Publisher
	topic string
}

// NewExporter dials amqpURL and returns an Exporter publishing to
// topic. Construction fails fast if the broker is unreachable,
// matching the teacher's fail-fast adapter construction.
func NewExporter(amqpURL, topic string, log *slog.Logger) (*Exporter, error) {
	wLog := watermill.NewSlogLogger(log)
	cfg := amqp.NewDurablePubSubConfig(amqpURL, nil)

	pub, err := amqp.NewPublisher(cfg, wLog)
	if err != nil {
		return nil, fmt.Errorf("pubsub: connect publisher: %w", err)
	}
	return &Exporter{log: wLog, pub: pub, topic: topic}, nil
}

// Publish encodes and sends one lifecycle event, logging (not
// returning) a publish failure — lifecycle export is best-effort
// observability, never allowed to block or fail the engine it's
// watching.
func (x *Exporter) Publish(ctx context.Context, ev LifecycleEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		x.log.Error("pubsub: marshal lifecycle event", err, nil)
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.SetContext(ctx)
	if err := x.pub.Publish(x.topic, msg); err != nil {
		x.log.Error("pubsub: publish lifecycle event", err, watermill.LogFields{"kind": ev.Kind})
	}
}

// Close releases the underlying AMQP connection.
func (x *Exporter) Close() error {
	return x.pub.Close()
}
