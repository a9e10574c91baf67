package notify

import (
	"context"

	"github.com/rs/zerolog"
)

//go:generate mockgen -destination=mock_sink_test.go -package=notify_test . Sink

// Sink delivers a rendered alert. Errors are logged by the dispatcher and
// never reach the request that produced the event.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// LogSink writes alerts to the log. It is the development default.
type LogSink struct {
	logger zerolog.Logger
}

var _ Sink = (*LogSink)(nil)

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(_ context.Context, msg Message) error {
	s.logger.Info().
		Str("to", msg.To).
		Str("event", string(msg.Event.Type)).
		Str("severity", string(msg.Severity)).
		Str("subject", msg.Subject).
		Str("ip", msg.Event.IP).
		Str("location", msg.Event.Location).
		Msg("security alert")
	return nil
}
