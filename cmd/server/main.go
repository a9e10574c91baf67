package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-admin-auth/auth"
	"github.com/jrsteele09/go-admin-auth/internal/config"
	"github.com/jrsteele09/go-admin-auth/internal/logging"
	"github.com/jrsteele09/go-admin-auth/internal/wiring"
	"github.com/jrsteele09/go-admin-auth/notify"
	"github.com/jrsteele09/go-admin-auth/server"
	"github.com/jrsteele09/go-admin-auth/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(c.GetEnv(), c.GetLogLevel())
	log.Logger = logger
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, closeStore, err := wiring.OpenStore(ctx, c, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	codec, err := token.NewCodecFromConfig(c)
	if err != nil {
		return err
	}

	authService, err := auth.NewService(repos, codec,
		auth.WithLogger(logger),
		auth.WithTOTPIssuer(c.GetTOTPIssuer()),
		auth.WithAttemptLimiter(auth.NewAttemptLimiter(c.GetMaxOTPAttempts(), codec.TTL(token.KindTwoFactorChallenge))),
	)
	if err != nil {
		return err
	}

	sink, closeSink, err := wiring.OpenSink(c, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	dispatcher := notify.NewDispatcher(sink,
		notify.WithLogger(logger),
		notify.WithRenderer(notify.NewRenderer(c.GetAppName())),
		notify.WithGeoResolver(notify.LocalGeoResolver{}),
		notify.WithQueueSize(c.GetNotifierQueueSize()),
		notify.WithWorkers(c.GetNotifierWorkers()),
	)

	handler, err := server.New(c, authService, repos, codec, dispatcher, server.WithLogger(logger))
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listenAndServe(httpServer, logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(httpServer, dispatcher)
	})
	return g.Wait()
}

func listenAndServe(httpServer *http.Server, logger zerolog.Logger) error {
	logger.Info().Msgf("Server listening on %s", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

// shutdown stops accepting requests, then drains queued notifications.
func shutdown(httpServer *http.Server, dispatcher *notify.Dispatcher) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	if err := dispatcher.Close(ctx); err != nil {
		return fmt.Errorf("dispatcher.Close: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
