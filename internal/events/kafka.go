// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/order-desk/internal/domain/order"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ order.Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher writes order events to a topic, keyed by order id so that
// all events of one order land on the same partition.
type KafkaPublisher struct {
	w       messageWriter
	timeout time.Duration
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		timeout: 5 * time.Second,
	}
}

// Publish writes e synchronously. The write is detached from ctx
// cancellation so that a client disconnect does not drop the event.
func (p *KafkaPublisher) Publish(ctx context.Context, e order.Event) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(e.Order.ID),
		Value: Encode(e),
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write %s event", e.Type)
	}
	return nil
}

// Close flushes pending writes and closes the connection.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// Encode renders e as the JSON event payload.
func Encode(e order.Event) []byte {
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("type")
	enc.Str(string(e.Type))
	enc.FieldStart("occurred_at")
	enc.Str(e.OccurredAt.UTC().Format(time.RFC3339Nano))
	enc.FieldStart("order")
	encodeOrder(&enc, &e.Order)
	enc.ObjEnd()
	return enc.Bytes()
}

func encodeOrder(enc *jx.Encoder, o *order.Order) {
	enc.ObjStart()
	enc.FieldStart("id")
	enc.Str(o.ID)
	enc.FieldStart("user")
	enc.Str(o.UserID)
	enc.FieldStart("items")
	enc.ArrStart()
	for _, it := range o.Items {
		enc.ObjStart()
		enc.FieldStart("product")
		enc.Str(it.ProductID)
		enc.FieldStart("quantity")
		enc.Int(it.Quantity)
		enc.FieldStart("price")
		enc.Str(it.Price.StringFixed(2))
		enc.ObjEnd()
	}
	enc.ArrEnd()
	enc.FieldStart("coupon_code")
	if code := o.CouponCode(); code != "" {
		enc.Str(code)
	} else {
		enc.Null()
	}
	enc.FieldStart("total_price")
	enc.Str(o.TotalPrice.StringFixed(2))
	enc.FieldStart("discount")
	enc.Str(o.Discount.StringFixed(2))
	enc.ObjEnd()
}
