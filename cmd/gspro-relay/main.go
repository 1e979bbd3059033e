// gspro-relay forwards launch monitor shots to a GSPro Open Connect
// server and keeps the monitor's shot mode in step with the player's club
// and distance to the pin.
//
// Without --feed the relay only keeps the GSPro session alive. With
// --feed it replays JSON-lines launch monitor events from a file, or from
// stdin when the path is "-".
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/life-stream-dev/gspro-osp-relay/internal/config"
	"github.com/life-stream-dev/gspro-osp-relay/internal/connection"
	"github.com/life-stream-dev/gspro-osp-relay/internal/device"
	"github.com/life-stream-dev/gspro-osp-relay/internal/event"
	"github.com/life-stream-dev/gspro-osp-relay/internal/logger"
	"github.com/life-stream-dev/gspro-osp-relay/internal/message"
	"github.com/life-stream-dev/gspro-osp-relay/internal/metrics"
	"github.com/life-stream-dev/gspro-osp-relay/internal/protocol"
	"github.com/life-stream-dev/gspro-osp-relay/internal/putting"
	"github.com/life-stream-dev/gspro-osp-relay/internal/relay"
)

const sessionEventBuffer = 64

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, feedPath, metricsAddress string
	var debug bool

	flagSet := pflag.NewFlagSet("gspro-relay", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the plugin settings file")
	flagSet.BoolVar(&debug, "debug", false, "enable debug logging")
	flagSet.StringVar(&feedPath, "feed", "", "JSON-lines launch monitor feed to replay (- for stdin)")
	flagSet.StringVar(&metricsAddress, "metrics-addr", "", "serve Prometheus metrics on this address")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.ReadConfig(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.DebugMode = true
	}
	if metricsAddress != "" {
		cfg.MetricsAddress = metricsAddress
	}

	loggerCallback := logger.Init(cfg.DebugMode, cfg.LogDirectory)
	logger.Debug("Application initializing...")
	cleaner := event.NewCleaner()
	ctx := cleaner.Init(loggerCallback)
	defer func() { _ = cleaner.Clean() }()

	if warning := cfg.Normalize(); warning != "" {
		logger.Warn(warning)
	}
	settings := cfg.PluginSettings
	policy := putting.NewPolicy(settings.DistanceToPtMode, settings.PuttingModeClubs)
	logger.InfoF("DistanceToPtMode: %v, PuttingModeClubs: %s", policy.Threshold, strings.Join(policy.Clubs(), ","))

	feed, closeFeed, err := openFeed(feedPath)
	if err != nil {
		return err
	}
	defer closeFeed()

	collectors := metrics.New()
	monitor := device.NewReplay()
	builder := message.NewBuilder(cfg.DeviceID, nil)
	sessionEvents := make(chan connection.Event, sessionEventBuffer)

	session := connection.NewSession(connection.Config{
		Address:    settings.Address(),
		MaxRetries: settings.MaxRetries,
		RetryDelay: settings.RetryDelayDuration(),
		Builder:    builder,
		Ready:      monitor.IsReady,
		Metrics:    collectors,
	}, sessionEvents)
	cleaner.Add(session)

	machine := protocol.NewMachine(monitor, policy, collectors)
	forwarder := relay.New(monitor, builder, session)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := session.Run(groupCtx)
		if errors.Is(err, connection.ErrGivenUp) {
			return nil
		}
		return ignoreCanceled(err)
	})
	group.Go(func() error {
		return ignoreCanceled(machine.Run(groupCtx, sessionEvents))
	})
	group.Go(func() error {
		return ignoreCanceled(forwarder.Run(groupCtx))
	})
	if feed != nil {
		group.Go(func() error {
			defer monitor.Close()
			if err := monitor.Play(groupCtx, feed); err != nil {
				return ignoreCanceled(err)
			}
			logger.Info("Launch monitor feed finished")
			return nil
		})
	}
	if cfg.MetricsAddress != "" {
		group.Go(func() error {
			return collectors.Serve(groupCtx, cfg.MetricsAddress)
		})
	}

	return group.Wait()
}

func openFeed(path string) (io.Reader, func(), error) {
	switch path {
	case "":
		return nil, func() {}, nil
	case "-":
		return os.Stdin, func() {}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening feed: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
