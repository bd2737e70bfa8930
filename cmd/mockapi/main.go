package main

import (
	"fmt"
	"os"
	"time"

	"github.com/common-nighthawk/go-figure"
	"golang.org/x/sync/errgroup"

	"budgetwise/internal/cli"
	"budgetwise/internal/config"
	applog "budgetwise/internal/log"
	"budgetwise/internal/mockapi"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel, os.Stdout)

	figure.NewFigure("budgetwise", "cybermedium", true).Print()
	fmt.Println()

	srv := mockapi.New(mockapi.Config{
		JWTSecret: cfg.MockAPIJWTSecret,
		RateLimit: 20,
		Logger:    logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, srv.Shutdown)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(":" + cfg.MockAPIPort)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Mock API stopped", applog.FieldError, err, "port", cfg.MockAPIPort)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Mock API stopped gracefully")
}
