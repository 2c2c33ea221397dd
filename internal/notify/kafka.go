package notify

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/stockwatch/stockwatch/internal/models"

	"github.com/segmentio/kafka-go"
)

// KafkaNotifier publishes stock-available envelopes to a topic. Messages
// are keyed by product id so every alert for one product lands on the
// same partition, keeping per-product ordering for downstream senders.
type KafkaNotifier struct {
	w           *kafka.Writer
	serviceName string
}

func NewKafkaNotifier(brokers []string, topic, serviceName string) *KafkaNotifier {
	return &KafkaNotifier{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		serviceName: serviceName,
	}
}

func (n *KafkaNotifier) Notify(ctx context.Context, alert models.StockAlert) error {
	env, err := newEnvelope(n.serviceName, alert)
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return n.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(alert.ProductID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(env.EventType)},
			{Key: "x-event-version", Value: []byte("1")},
		},
	})
}

func (n *KafkaNotifier) Close() error {
	return n.w.Close()
}
