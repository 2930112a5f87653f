package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"

	"MarketRelay/internal/model"
)

// KafkaSink writes quotes to a topic keyed by symbol, so every symbol stays
// ordered within its partition.
type KafkaSink struct {
	w *kafkaGo.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{w: &kafkaGo.Writer{
		Addr:         kafkaGo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkaGo.Hash{},
		RequiredAcks: kafkaGo.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Publish(ctx context.Context, u model.QuoteUpdate) error {
	msg, err := quoteMessage(u)
	if err != nil {
		return err
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}

func (k *KafkaSink) Close() error { return k.w.Close() }

func quoteMessage(u model.QuoteUpdate) (kafkaGo.Message, error) {
	value, err := json.Marshal(u)
	if err != nil {
		return kafkaGo.Message{}, fmt.Errorf("failed to marshal quote: %w", err)
	}
	msg := kafkaGo.Message{Key: []byte(u.Symbol), Value: value}
	if u.Provenance.RetrievedAt > 0 {
		msg.Time = time.UnixMilli(u.Provenance.RetrievedAt)
	}
	return msg, nil
}

// EnsureTopic creates topic through the cluster controller if it is missing.
func EnsureTopic(broker, topic string) error {
	conn, err := kafkaGo.Dial("tcp", broker)
	if err != nil {
		return fmt.Errorf("dial kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("get kafka controller: %w", err)
	}
	controllerConn, err := kafkaGo.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial kafka controller: %w", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	log.Printf("[INFO] kafka topic %q is ready", topic)
	return nil
}
