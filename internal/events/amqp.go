package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp091 "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher writes events to one durable queue per topic over a single
// connection. Offsets are a per-topic sequence assigned at publish time;
// everything lands on partition 0, the broker has no partitioning of its own.
type AMQPPublisher struct {
	conn *amqp091.Connection
	ch   *amqp091.Channel

	mu      sync.Mutex
	offsets map[string]int64

	log *slog.Logger
}

func NewAMQPPublisher(url string, log *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: connect failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: channel failed: %w", err)
	}
	for _, topic := range Topics {
		if _, err := ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("amqp: declare %s failed: %w", topic, err)
		}
	}
	return &AMQPPublisher{
		conn:    conn,
		ch:      ch,
		offsets: make(map[string]int64),
		log:     log,
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, topic, key string, ev Event) (Receipt, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return Receipt{}, err
	}

	// amqp091 channels are not safe for concurrent publishes.
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx,
		"", topic,
		false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			MessageId:     ev.ID,
			CorrelationId: key,
			Body:          body,
		},
	)
	if err != nil {
		return Receipt{}, fmt.Errorf("amqp: publish to %s failed: %w", topic, err)
	}

	offset := p.offsets[topic]
	p.offsets[topic]++
	return Receipt{Partition: 0, Offset: offset}, nil
}

// RunConsumers drains every topic on its own channel and logs each delivery,
// mirroring what a downstream processor would see. Returns once ctx is done.
func (p *AMQPPublisher) RunConsumers(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, topic := range Topics {
		ch, err := p.conn.Channel()
		if err != nil {
			return fmt.Errorf("amqp: consumer channel for %s failed: %w", topic, err)
		}
		deliveries, err := ch.Consume(topic, "", true, false, false, false, nil)
		if err != nil {
			ch.Close()
			return fmt.Errorf("amqp: consume %s failed: %w", topic, err)
		}
		p.log.Info("consumer_started", slog.String("topic", topic))

		wg.Add(1)
		go func(topic string, ch *amqp091.Channel, deliveries <-chan amqp091.Delivery) {
			defer wg.Done()
			defer ch.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					p.log.Info("event_received",
						slog.String("topic", topic),
						slog.String("event_id", d.MessageId),
						slog.String("key", d.CorrelationId),
						slog.Int("bytes", len(d.Body)),
					)
				}
			}
		}(topic, ch, deliveries)
	}
	wg.Wait()
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
