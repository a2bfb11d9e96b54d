package iodispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/segmentio/kafka-go"
	"github.com/sugawarayuuta/sonnet"
)

type KafkaEventRouter struct {
	ctx      context.Context
	producer *kafka.Writer
}

// NewKafkaEventRouter creates an asynchronous writer: Process only queues the
// message, so the dispatcher never waits on the broker. Messages are keyed by
// descriptor, so the events of one connection stay in order on one partition.
func NewKafkaEventRouter(config EventsConfig) (*KafkaEventRouter, error) {
	brokers := getBrokers(config.KafkaBrokers)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("%w: incorrect brokers for kafka event router: %q", errBadConfig, config.KafkaBrokers)
	}
	if config.KafkaTopic == "" {
		return nil, fmt.Errorf("%w: empty topic for kafka event router", errBadConfig)
	}
	return &KafkaEventRouter{
		ctx: context.Background(),
		producer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        config.KafkaTopic,
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			Balancer:     JumpHashBalancer{},
		},
	}, nil
}

func (kef *KafkaEventRouter) Process(key string, event *Event) error {
	data, err := sonnet.Marshal(event)
	if err != nil {
		return err
	}
	message := kafka.Message{
		Key:     []byte(strconv.Itoa(event.Fd)),
		Value:   data,
		Headers: []kafka.Header{{Key: "event_id", Value: []byte(key)}},
	}
	return kef.producer.WriteMessages(kef.ctx, message)
}

func (kef *KafkaEventRouter) Close() error {
	return kef.producer.Close()
}

func getBrokers(brokers string) []string {
	var result []string
	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			result = append(result, broker)
		}
	}
	return result
}
