package iodispatch

type EventRouter interface {
	Process(key string, event *Event) error
	Close() error
}

type nopEventRouter struct{}

func (nopEventRouter) Process(string, *Event) error {
	return nil
}

func (nopEventRouter) Close() error {
	return nil
}

// NewEventRouter returns a Kafka router when brokers are configured and a
// router that drops everything otherwise.
func NewEventRouter(config EventsConfig) (EventRouter, error) {
	if config.KafkaBrokers == "" {
		return nopEventRouter{}, nil
	}
	return NewKafkaEventRouter(config)
}
