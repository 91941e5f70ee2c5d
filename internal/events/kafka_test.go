package events

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-desk/internal/domain/order"
	"github.com/xenking/order-desk/internal/domain/promo"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testEvent() order.Event {
	return order.Event{
		Type:       order.EventCreated,
		OccurredAt: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
		Order: order.Order{
			ID:     "o1",
			UserID: "u1",
			Items: []order.Item{
				{ID: 1, ProductID: "p1", Quantity: 2, Price: decimal.RequireFromString("20")},
			},
			Promo:      &promo.PromoCode{Code: "TEN"},
			TotalPrice: decimal.RequireFromString("10"),
			Discount:   decimal.RequireFromString("10"),
		},
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{w: w, timeout: time.Second}

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "o1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "order.created", string(msg.Headers[0].Value))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("no brokers")}
	p := &KafkaPublisher{w: w, timeout: time.Second}

	err := p.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order.created")
}

func TestEncode(t *testing.T) {
	data := Encode(testEvent())
	require.True(t, jx.Valid(data))

	var (
		typ, occurred, total, code string
		items                      int
	)
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "type":
			v, err := d.Str()
			typ = v
			return err
		case "occurred_at":
			v, err := d.Str()
			occurred = v
			return err
		case "order":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				switch string(key) {
				case "total_price":
					v, err := d.Str()
					total = v
					return err
				case "coupon_code":
					v, err := d.Str()
					code = v
					return err
				case "items":
					return d.Arr(func(d *jx.Decoder) error {
						items++
						return d.Skip()
					})
				default:
					return d.Skip()
				}
			})
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)

	assert.Equal(t, "order.created", typ)
	assert.Equal(t, "2026-02-03T04:05:06Z", occurred)
	assert.Equal(t, "10.00", total)
	assert.Equal(t, "TEN", code)
	assert.Equal(t, 1, items)
}
