// Package events publishes domain events to Kafka.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/wassimD28/store-go/internal/domain/promotion"
)

// TypePromotionApplied is the event type of a committed promotion.
const TypePromotionApplied = "promotion.applied"

// MessageWriter is implemented by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a writer for topic. Messages are partitioned by key
// so events of one promotion stay ordered.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

var _ promotion.Publisher = (*Publisher)(nil)

// Publisher writes promotion events as CloudEvents-style JSON envelopes.
type Publisher struct {
	w      MessageWriter
	source string
	lg     *zap.Logger
	newID  func() string
}

// NewPublisher creates a Publisher that stamps events with source.
func NewPublisher(w MessageWriter, source string, lg *zap.Logger) *Publisher {
	return &Publisher{
		w:      w,
		source: source,
		lg:     lg,
		newID:  func() string { return uuid.New().String() },
	}
}

// PromotionApplied publishes e keyed by promotion ID.
func (p *Publisher) PromotionApplied(ctx context.Context, e promotion.Applied) error {
	id := p.newID()
	msg := kafka.Message{
		Key:   []byte(e.PromotionID),
		Value: p.encodeApplied(id, e),
		Headers: []kafka.Header{
			{Key: "ce_type", Value: []byte(TypePromotionApplied)},
			{Key: "ce_id", Value: []byte(id)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write %s event", TypePromotionApplied)
	}
	p.lg.Debug("Event published",
		zap.String("type", TypePromotionApplied),
		zap.String("event_id", id),
		zap.String("promotion_id", e.PromotionID),
	)
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}

func (p *Publisher) encodeApplied(id string, e promotion.Applied) []byte {
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("specversion")
	enc.Str("1.0")
	enc.FieldStart("id")
	enc.Str(id)
	enc.FieldStart("source")
	enc.Str(p.source)
	enc.FieldStart("type")
	enc.Str(TypePromotionApplied)
	enc.FieldStart("time")
	enc.Str(e.AppliedAt.UTC().Format(time.RFC3339Nano))
	enc.FieldStart("datacontenttype")
	enc.Str("application/json")

	enc.FieldStart("data")
	enc.ObjStart()
	enc.FieldStart("promotionId")
	enc.Str(e.PromotionID)
	enc.FieldStart("storeId")
	enc.Str(e.StoreID)
	if e.CouponCode != "" {
		enc.FieldStart("couponCode")
		enc.Str(e.CouponCode)
	}
	enc.FieldStart("discountType")
	enc.Str(string(e.DiscountType))
	enc.FieldStart("subtotal")
	enc.Str(e.Subtotal.StringFixed(2))
	enc.FieldStart("discount")
	enc.Str(e.Discount.StringFixed(2))
	enc.FieldStart("freeShipping")
	enc.Bool(e.FreeShipping)
	enc.FieldStart("usageCount")
	enc.Int(e.UsageCount)
	enc.ObjEnd()

	enc.ObjEnd()
	return enc.Bytes()
}
