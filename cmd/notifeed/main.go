package main

import (
	"log"
	"time"

	"github.com/joho/godotenv"

	"notifeed/internal/app"
	"notifeed/pkg/config"
	"notifeed/pkg/logger"
	"notifeed/pkg/shutdown"
)

// build metadata - set via ldflags during release
var version = "dev"

func main() {
	_ = godotenv.Load(".env")

	flags := config.ParseConfigFlags()
	eff, err := config.LoadEffective(flags)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.InitWithLevel(eff.Config.Logging.Level)

	a, err := app.New(eff, version)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	ctx, stop := shutdown.SignalContext(nil)
	defer stop()

	runErr := a.Run(ctx)
	shutdown.Run(10 * time.Second)
	if runErr != nil {
		log.Fatalf("server exited: %v", runErr)
	}
	logger.Info("notifeed_stopped")
}
