package messaging

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/card-shop/internal/core/domain"
	"github.com/rl1809/card-shop/internal/port"
)

const EventOrderCompleted = "order.completed"

type OrderCompletedEvent struct {
	EventID    string             `json:"eventId"`
	Event      string             `json:"event"`
	OrderID    int64              `json:"orderId"`
	OwnerID    int64              `json:"ownerId"`
	TotalValue decimal.Decimal    `json:"totalValue"`
	Lines      []domain.OrderLine `json:"lines"`
	OccurredAt time.Time          `json:"occurredAt"`
}

func NewOrderCompletedEvent(order domain.Order) OrderCompletedEvent {
	return OrderCompletedEvent{
		EventID:    uuid.NewString(),
		Event:      EventOrderCompleted,
		OrderID:    order.ID,
		OwnerID:    order.OwnerID,
		TotalValue: order.TotalValue,
		Lines:      order.Lines,
		OccurredAt: order.CreatedAt,
	}
}

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

var _ port.EventPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher takes a comma separated broker list.
func NewKafkaPublisher(brokersCSV, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(ParseBrokers(brokersCSV)...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *KafkaPublisher) PublishOrderCompleted(ctx context.Context, order domain.Order) error {
	data, err := json.Marshal(NewOrderCompletedEvent(order))
	if err != nil {
		return err
	}
	// Keyed by owner so one customer's orders stay on one partition.
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(order.OwnerID, 10)),
		Value: data,
		Time:  time.Now().UTC(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func ParseBrokers(brokersCSV string) []string {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// LogPublisher stands in when no brokers are configured.
type LogPublisher struct {
	logger *zap.Logger
}

var _ port.EventPublisher = (*LogPublisher)(nil)

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishOrderCompleted(_ context.Context, order domain.Order) error {
	p.logger.Info(EventOrderCompleted,
		zap.Int64("order_id", order.ID),
		zap.Int64("owner_id", order.OwnerID),
		zap.String("total_value", order.TotalValue.StringFixed(2)),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
