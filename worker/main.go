package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"ds-trapezoid.com/app"
	"ds-trapezoid.com/common/closer"
	"ds-trapezoid.com/logs"
	"ds-trapezoid.com/master/config"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logs.Log.Error("Worker failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.Load(); err != nil {
		return err
	}
	if err := logs.Setup(config.LogLevel, config.LogFormat, os.Stderr); err != nil {
		return err
	}
	if config.Transport == "local" {
		return errors.New("workers join an rpc or nats cluster; the local transport runs inside the master")
	}
	if config.Rank == 0 {
		return errors.New("rank 0 is the master")
	}

	logs.Log.Info("Starting Integral Worker...", "rank", config.Rank, "transport", config.Transport)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := app.OptionsFromConfig()
	if err != nil {
		return err
	}

	cc, err := app.Connect()
	if err != nil {
		return err
	}
	defer closer.LogClose(cc, "cluster", logs.Log)

	_, err = app.Run(ctx, cc, opts)
	return err
}
