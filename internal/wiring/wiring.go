// Package wiring builds the stores and notification sinks named by the
// configuration. It is shared by the commands under cmd/.
package wiring

import (
	"context"
	"fmt"
	"time"

	fakeaccountrepo "github.com/jrsteele09/go-admin-auth/accounts/repofake"
	"github.com/jrsteele09/go-admin-auth/auth"
	"github.com/jrsteele09/go-admin-auth/internal/config"
	"github.com/jrsteele09/go-admin-auth/notify"
	fakesessionrepo "github.com/jrsteele09/go-admin-auth/sessions/repofake"
	"github.com/jrsteele09/go-admin-auth/store/boltstore"
	"github.com/jrsteele09/go-admin-auth/store/mongostore"
	"github.com/rs/zerolog"
)

const closeTimeout = 10 * time.Second

// OpenStore opens the account and session store named by STORE_DRIVER.
func OpenStore(ctx context.Context, c config.Config, logger zerolog.Logger) (auth.Repos, func(), error) {
	switch c.GetStoreDriver() {
	case config.StoreDriverBolt:
		st, err := boltstore.Open(c.GetBoltPath())
		if err != nil {
			return auth.Repos{}, nil, fmt.Errorf("[OpenStore] %w", err)
		}
		logger.Info().Str("path", c.GetBoltPath()).Msg("using bolt store")
		return auth.Repos{Accounts: st.Accounts(), Sessions: st.Sessions()}, func() {
			if err := st.Close(); err != nil {
				logger.Error().Err(err).Msg("closing bolt store")
			}
		}, nil

	case config.StoreDriverMongo:
		st, err := mongostore.Connect(ctx, c.GetMongoURI(), c.GetMongoDatabase())
		if err != nil {
			return auth.Repos{}, nil, fmt.Errorf("[OpenStore] %w", err)
		}
		logger.Info().Str("database", c.GetMongoDatabase()).Msg("using mongo store")
		return auth.Repos{Accounts: st.Accounts(), Sessions: st.Sessions()}, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := st.Close(closeCtx); err != nil {
				logger.Error().Err(err).Msg("closing mongo store")
			}
		}, nil

	default:
		logger.Warn().Msg("using in-memory store, accounts and sessions are lost on restart")
		return auth.Repos{
			Accounts: fakeaccountrepo.NewFakeAccountRepo(),
			Sessions: fakesessionrepo.NewFakeSessionRepo(),
		}, func() {}, nil
	}
}

// OpenSink picks where rendered security alerts go, by NOTIFIER_DRIVER.
func OpenSink(c config.Config, logger zerolog.Logger) (notify.Sink, func(), error) {
	switch c.GetNotifierDriver() {
	case config.NotifierDriverRabbitMQ:
		sink, err := notify.NewRabbitMQSink(c.GetRabbitMQURL(), c.GetRabbitMQQueue())
		if err != nil {
			return nil, nil, fmt.Errorf("[OpenSink] %w", err)
		}
		return sink, closer(sink.Close, "rabbitmq sink", logger), nil

	case config.NotifierDriverKafka:
		sink := notify.NewKafkaSink(c.GetKafkaBrokers(), c.GetKafkaTopic())
		return sink, closer(sink.Close, "kafka sink", logger), nil

	default:
		return notify.NewLogSink(logger), func() {}, nil
	}
}

func closer(closeFn func() error, name string, logger zerolog.Logger) func() {
	return func() {
		if err := closeFn(); err != nil {
			logger.Error().Err(err).Msgf("closing %s", name)
		}
	}
}

