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
	"github.com/joho/godotenv"
	"github.com/jrsteele09/go-alert-web/internal/config"
	"github.com/jrsteele09/go-alert-web/internal/logging"
	"github.com/jrsteele09/go-alert-web/server"
	"github.com/jrsteele09/go-alert-web/server/devices"
	"github.com/jrsteele09/go-alert-web/session"
	"github.com/jrsteele09/go-alert-web/storage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const sweepInterval = time.Minute

func main() {
	// .env is optional, real environment variables win
	_ = godotenv.Load()

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

	c, err := config.New()
	if err != nil {
		return err
	}
	logging.Setup(c.GetLogLevel(), c.GetEnv())
	displayAppname(c.GetAppName())

	backend, client, err := openBackend(c)
	if err != nil {
		return err
	}
	if client != nil {
		defer client.Close()
	}

	registry := devices.NewRegistry(
		devices.StoreFactory(backend, c.GetAPIBaseURL(), c.GetAPITimeout(), session.WithLogoutTimeout(c.GetAPITimeout())),
		devices.WithIdleTTL(c.GetDeviceIdleTTL()),
	)
	defer registry.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go registry.Run(ctx, sweepInterval)

	var sessionClient redis.UniversalClient
	if client != nil {
		sessionClient = client
	}
	handler, err := server.New(c, registry, server.NewSessionManager(c, sessionClient, c.GetStoragePrefix()))
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errs := make(chan error, 1)
	go func() {
		errs <- listenAndServe(httpServer)
	}()

	select {
	case err := <-errs:
		if err != nil {
			return err
		}
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

// openBackend picks redis when REDIS_URL is set so replicas share device state
func openBackend(c config.Config) (devices.Backend, *redis.Client, error) {
	if !c.UseRedis() {
		log.Info().Msg("Using in-memory session storage")
		return devices.NewMemoryBackend(), nil, nil
	}
	client, err := storage.ConnectRedis(c.GetRedisURL())
	if err != nil {
		return nil, nil, fmt.Errorf("[main openBackend] %w", err)
	}
	log.Info().Msg("Using redis session storage")
	return devices.NewRedisBackend(client, c.GetStoragePrefix(), c.GetSessionLifetime(), c.GetRememberLifetime()), client, nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
