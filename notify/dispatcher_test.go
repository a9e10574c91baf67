package notify_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-admin-auth/notify"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testEvent(t notify.EventType) notify.Event {
	return notify.Event{
		Type:       t,
		AccountID:  "acc-1",
		Email:      "admin@example.com",
		IP:         "10.1.2.3",
		Device:     "Firefox 128",
		OS:         "Linux",
		OccurredAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestDispatcher_DeliversRenderedMessage(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := NewMockSink(ctrl)

	var got notify.Message
	sink.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg notify.Message) error {
		got = msg
		return nil
	})

	d := notify.NewDispatcher(sink, notify.WithLogger(zerolog.Nop()), notify.WithRenderer(notify.NewRenderer("Shop Admin")))
	d.Publish(testEvent(notify.EventNewLogin))
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, "admin@example.com", got.To)
	assert.Equal(t, notify.SeverityInfo, got.Severity)
	assert.Contains(t, got.Subject, "Shop Admin")
	assert.Contains(t, got.Body, "10.1.2.3")
	assert.Contains(t, got.Body, "Private network")
	assert.Contains(t, got.Body, "Firefox 128")
	assert.Equal(t, "Private network", got.Event.Location)
}

func TestDispatcher_SinkErrorIsLoggedOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := NewMockSink(ctrl)
	sink.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("smtp down")).Times(2)

	var buf bytes.Buffer
	d := notify.NewDispatcher(sink, notify.WithLogger(zerolog.New(&buf)), notify.WithWorkers(1))
	d.Publish(testEvent(notify.EventPasswordChanged), testEvent(notify.EventTwoFactorEnabled))
	require.NoError(t, d.Close(context.Background()))

	assert.Contains(t, buf.String(), "smtp down")
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := NewMockSink(ctrl)

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	sink.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, notify.Message) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}).Times(2)

	var buf bytes.Buffer
	d := notify.NewDispatcher(sink,
		notify.WithLogger(zerolog.New(&buf)),
		notify.WithWorkers(1),
		notify.WithQueueSize(1),
	)

	d.Publish(testEvent(notify.EventNewLogin))
	<-started // worker is busy with the first event

	d.Publish(testEvent(notify.EventNewLogin)) // fills the queue
	d.Publish(testEvent(notify.EventNewLogin)) // dropped

	close(release)
	require.NoError(t, d.Close(context.Background()))
	assert.Contains(t, buf.String(), "queue full")
}

func TestDispatcher_PublishAfterCloseIsDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := NewMockSink(ctrl)

	d := notify.NewDispatcher(sink, notify.WithLogger(zerolog.Nop()))
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	require.NotPanics(t, func() {
		d.Publish(testEvent(notify.EventNewLogin))
	})
}

func TestDispatcher_CloseHonoursContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := NewMockSink(ctrl)

	release := make(chan struct{})
	sink.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, notify.Message) error {
		<-release
		return nil
	})

	d := notify.NewDispatcher(sink, notify.WithLogger(zerolog.Nop()), notify.WithWorkers(1))
	d.Publish(testEvent(notify.EventNewLogin))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, d.Close(context.Background()))
}
