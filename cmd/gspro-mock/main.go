// gspro-mock imitates the GSPro Open Connect endpoint for local testing of
// gspro-relay. It greets every connection with a ready notification,
// acknowledges shots and, when --club is given, reports the player's next
// club and distance after each shot.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/life-stream-dev/gspro-osp-relay/internal/event"
	"github.com/life-stream-dev/gspro-osp-relay/internal/gspro"
	"github.com/life-stream-dev/gspro-osp-relay/internal/logger"
	"github.com/life-stream-dev/gspro-osp-relay/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var host, club string
	var port int
	var distance float64
	var debug bool

	flagSet := pflag.NewFlagSet("gspro-mock", pflag.ContinueOnError)
	flagSet.StringVar(&host, "host", "127.0.0.1", "address to listen on")
	flagSet.IntVarP(&port, "port", "p", 921, "port to listen on")
	flagSet.StringVar(&club, "club", "", "club reported after each shot, e.g. PT or 7I")
	flagSet.Float64Var(&distance, "distance", 0, "distance to target in yards reported with --club")
	flagSet.BoolVar(&debug, "debug", false, "enable debug logging")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	loggerCallback := logger.Init(debug, "")
	cleaner := event.NewCleaner()
	ctx := cleaner.Init(loggerCallback)
	defer func() { _ = cleaner.Clean() }()

	options := server.Options{
		Greeting: []gspro.Response{gspro.NewResponse(gspro.CodeReady, gspro.ReadyMessage)},
	}
	if club != "" {
		options.Player = &gspro.Player{
			Handed:           gspro.String("RH"),
			Club:             gspro.String(club),
			DistanceToTarget: gspro.Float(distance),
		}
	}

	srv, err := server.Listen(net.JoinHostPort(host, strconv.Itoa(port)), options)
	if err != nil {
		return err
	}
	cleaner.Add(event.CallableFunc(func(_ context.Context) error { return srv.Close() }))
	return srv.Serve(ctx)
}
