package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/consultadmin/consultadmin/internal/config"
	"github.com/consultadmin/consultadmin/internal/devserver"
	"github.com/consultadmin/consultadmin/internal/logger"
)

var version = "dev" // Will be set during build with -ldflags

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.GetLogger()

	srv, err := devserver.New(cfg.DevServer, log, version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}
	defer srv.Close()

	seed := devserver.DefaultSeed()
	if err := srv.Seed(seed); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed accounts")
	}
	for _, a := range seed {
		log.Info().Str("email", a.Email).Str("password", a.Password).Str("role", a.Role).Msg("Seeded account")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", version).Msg("Starting consultadmin dev server...")

	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
