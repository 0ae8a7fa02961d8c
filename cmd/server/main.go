package main

import (
	"context"
	"flag"
	"log"

	"hackhub/internal/app"
	"hackhub/internal/config"
	"hackhub/internal/logging"
)

func main() {
	configFile := flag.String("config", "", "optional YAML config file")
	addr := flag.String("addr", "", "listen address (overrides HTTP_ADDR)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	logger := logging.New(cfg.Env, cfg.LogLevel)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	if err := a.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start failed")
	}
	app.WaitForShutdown(a)
}
