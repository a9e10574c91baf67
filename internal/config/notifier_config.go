package config

import "fmt"

const (
	NotifierDriverLog      = "log"
	NotifierDriverRabbitMQ = "rabbitmq"
	NotifierDriverKafka    = "kafka"
)

type NotifierConfig interface {
	GetNotifierDriver() string
	GetNotifierQueueSize() int
	GetNotifierWorkers() int
	GetRabbitMQURL() string
	GetRabbitMQQueue() string
	GetKafkaBrokers() []string
	GetKafkaTopic() string
}

type Notifier struct {
	Driver        string   `env:"NOTIFIER_DRIVER" envDefault:"log"`
	QueueSize     int      `env:"NOTIFIER_QUEUE_SIZE" envDefault:"256"`
	Workers       int      `env:"NOTIFIER_WORKERS" envDefault:"2"`
	RabbitMQURL   string   `env:"RABBITMQ_URL"`
	RabbitMQQueue string   `env:"RABBITMQ_QUEUE" envDefault:"email_jobs"`
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic    string   `env:"KAFKA_TOPIC" envDefault:"security-events"`
}

var _ NotifierConfig = Notifier{}

func (n Notifier) GetNotifierDriver() string {
	if n.Driver == "" {
		return NotifierDriverLog
	}
	return n.Driver
}

func (n Notifier) GetNotifierQueueSize() int {
	if n.QueueSize <= 0 {
		return 256
	}
	return n.QueueSize
}

func (n Notifier) GetNotifierWorkers() int {
	if n.Workers <= 0 {
		return 1
	}
	return n.Workers
}

func (n Notifier) GetRabbitMQURL() string    { return n.RabbitMQURL }
func (n Notifier) GetRabbitMQQueue() string  { return n.RabbitMQQueue }
func (n Notifier) GetKafkaBrokers() []string { return n.KafkaBrokers }
func (n Notifier) GetKafkaTopic() string     { return n.KafkaTopic }

func (n Notifier) validate() error {
	switch n.GetNotifierDriver() {
	case NotifierDriverLog:
		return nil
	case NotifierDriverRabbitMQ:
		if n.RabbitMQURL == "" {
			return fmt.Errorf("RABBITMQ_URL is required when NOTIFIER_DRIVER=%s", NotifierDriverRabbitMQ)
		}
		return nil
	case NotifierDriverKafka:
		if len(n.KafkaBrokers) == 0 || n.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC are required when NOTIFIER_DRIVER=%s", NotifierDriverKafka)
		}
		return nil
	default:
		return fmt.Errorf("unknown NOTIFIER_DRIVER %q", n.Driver)
	}
}
