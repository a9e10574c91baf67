package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher is the subset of *amqp.Channel the sink needs.
type AMQPPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// emailJob is the payload consumed by the mail worker.
type emailJob struct {
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Severity  Severity  `json:"severity"`
	EventType EventType `json:"event_type"`
	AccountID string    `json:"account_id"`
}

// RabbitMQSink publishes alerts as persistent jobs on a durable queue.
type RabbitMQSink struct {
	conn  *amqp.Connection
	chn   *amqp.Channel
	pub   AMQPPublisher
	queue string
	mu    sync.Mutex
}

var _ Sink = (*RabbitMQSink)(nil)

// NewRabbitMQSink dials url and declares queue.
func NewRabbitMQSink(url, queue string) (*RabbitMQSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("[NewRabbitMQSink] dial: %w", err)
	}
	chn, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("[NewRabbitMQSink] open channel: %w", err)
	}
	_, err = chn.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		chn.Close()
		conn.Close()
		return nil, fmt.Errorf("[NewRabbitMQSink] declare queue %s: %w", queue, err)
	}

	return &RabbitMQSink{conn: conn, chn: chn, pub: chn, queue: queue}, nil
}

// NewRabbitMQSinkWithPublisher allows injecting a test publisher.
func NewRabbitMQSinkWithPublisher(pub AMQPPublisher, queue string) *RabbitMQSink {
	return &RabbitMQSink{pub: pub, queue: queue}
}

func (s *RabbitMQSink) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(emailJob{
		To:        msg.To,
		Subject:   msg.Subject,
		Body:      msg.Body,
		Severity:  msg.Severity,
		EventType: msg.Event.Type,
		AccountID: msg.Event.AccountID,
	})
	if err != nil {
		return fmt.Errorf("[RabbitMQSink Send] marshal: %w", err)
	}

	// channels are not safe for concurrent publishing
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pub.PublishWithContext(ctx,
		"",      // default exchange
		s.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (s *RabbitMQSink) Close() error {
	if s.chn != nil {
		if err := s.chn.Close(); err != nil {
			return err
		}
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
