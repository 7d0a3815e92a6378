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
	"ds-trapezoid.com/master/api"
	"ds-trapezoid.com/master/config"
	"ds-trapezoid.com/master/icalc"
	"ds-trapezoid.com/report"
	"ds-trapezoid.com/worker/calculator"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logs.Log.Error("Integration failed", "err", err)
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
	logs.Log.Info("Starting Integral Master...")
	logs.Log.Info("Config loaded",
		"bounds", []float64{config.LowerBound, config.UpperBound}, "slices", config.SliceCount,
		"function", config.Function, "transport", config.Transport, "report", config.Report)
	logs.Log.Debug("Integrand catalogue", "functions", calculator.Names())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := app.OptionsFromConfig()
	if err != nil {
		return err
	}
	reporters := app.Reporters(ctx)
	defer reporters.Close(logs.Log)

	if config.HTTPAddr != "" {
		opts.OnCoordinator = func(c *icalc.Coordinator) {
			srv := api.NewServer(c)
			if h := reporters.History(); h != nil {
				srv.WithHistory(h)
			}
			go func() {
				if err := srv.Start(ctx, config.HTTPAddr); err != nil {
					logs.Log.Error("API server stopped", "err", err)
				}
			}()
		}
	}

	var res *icalc.Result
	if config.Transport == "local" {
		res, err = app.RunLocal(ctx, config.Workers, opts)
	} else {
		res, err = runRemote(ctx, opts)
	}
	if err != nil {
		return err
	}

	summary := report.NewSummary(config.Function, opts.Coordinator.Policy, res)
	if err := reporters.Report(ctx, summary); err != nil {
		logs.Log.Warn("Result not fully reported", "err", err)
	}

	if config.HTTPAddr != "" {
		logs.Log.Info("Run finished, status API stays up until interrupted", "addr", config.HTTPAddr)
		<-ctx.Done()
	}
	return nil
}

func runRemote(ctx context.Context, opts app.Options) (*icalc.Result, error) {
	if config.Rank != 0 {
		return nil, errors.Errorf("the master runs rank 0, not %d; start workers with the worker binary", config.Rank)
	}

	cc, err := app.Connect()
	if err != nil {
		return nil, err
	}
	defer closer.LogClose(cc, "cluster", logs.Log)

	return app.Run(ctx, cc, opts)
}
