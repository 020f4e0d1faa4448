// Command mockapi serves a development copy of the alert API's authentication endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jrsteele09/go-alert-web/internal/config"
	"github.com/jrsteele09/go-alert-web/internal/logging"
	"github.com/jrsteele09/go-alert-web/mockapi"
	fakeuserrepo "github.com/jrsteele09/go-alert-web/users/repofake"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Mock API stopped")
	}
}

func run() error {
	c, err := config.NewMockAPI()
	if err != nil {
		return err
	}
	logging.Setup(c.GetLogLevel(), c.GetEnv())

	repo := fakeuserrepo.NewFakeUserRepo()
	if err := mockapi.Seed(repo, c.GetSeedPassword()); err != nil {
		return err
	}
	for _, a := range mockapi.SeedAccounts {
		log.Info().Str("username", a.Username).Str("role", string(a.Role)).Bool("verified", a.Verified).Bool("blocked", a.Blocked).Msg("Seeded account")
	}

	api := mockapi.New(repo, mockapi.WithSecret(c.GetJWTSecret()), mockapi.WithTokenTTL(c.GetTokenTTL()))
	srv := &http.Server{Addr: c.GetPort(), Handler: api, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.Info().Msgf("Mock API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Mock API failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
