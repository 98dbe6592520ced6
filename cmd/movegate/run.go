package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/viant/movegate"
	"github.com/viant/movegate/model"
	"github.com/viant/movegate/service/bus/ws"
	"github.com/viant/movegate/service/coordinator"
)

const busPath = "/bus"

// Arbiter modes.
const (
	arbiterNone    = ""
	arbiterApprove = "approve"
	arbiterDeny    = "deny"
)

type options struct {
	configURL string
	listen    string
	arbiter   string
	delay     time.Duration
	enable    bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*options, error) {
	ret := &options{}
	fs.StringVar(&ret.configURL, "config", "", "YAML config URL")
	fs.StringVar(&ret.listen, "listen", "", "hub listen address, overrides bus.listen")
	fs.StringVar(&ret.arbiter, "arbiter", arbiterNone, "run a headless arbiter: approve or deny")
	fs.DurationVar(&ret.delay, "delay", 0, "headless arbiter decision delay")
	fs.BoolVar(&ret.enable, "enable", false, "require approval on start (headless arbiter only)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	switch ret.arbiter {
	case arbiterNone, arbiterApprove, arbiterDeny:
	default:
		return nil, fmt.Errorf("unsupported arbiter mode: %s", ret.arbiter)
	}
	if ret.enable && ret.arbiter == arbiterNone {
		return nil, errors.New("-enable requires -arbiter")
	}
	return ret, nil
}

func run(ctx context.Context, options *options) error {
	config, err := movegate.LoadConfig(ctx, options.configURL)
	if err != nil {
		return err
	}
	if options.listen != "" {
		config.Bus.Listen = options.listen
	}
	listener, err := net.Listen("tcp", config.Bus.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %v: %w", config.Bus.Listen, err)
	}
	hub := ws.NewHub()
	mux := http.NewServeMux()
	mux.Handle(busPath, hub)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	served := make(chan error, 1)
	go func() { served <- server.Serve(listener) }()
	log.Printf("hub listening on %v%v", listener.Addr(), busPath)

	var arbiter *movegate.Client
	if options.arbiter != arbiterNone {
		if arbiter, err = startArbiter(ctx, config, listener.Addr().String(), options); err != nil {
			_ = server.Close()
			return err
		}
	}

	select {
	case <-ctx.Done():
	case err = <-served:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if arbiter != nil {
		_ = arbiter.Close(shutdownCtx)
	}
	_ = hub.Close()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func startArbiter(ctx context.Context, config *movegate.Config, address string, options *options) (*movegate.Client, error) {
	arbiterConfig := *config
	arbiterConfig.Bus.Vendor = movegate.BusWS
	arbiterConfig.Bus.URL = "ws://" + address + busPath

	presenter := coordinator.AutoApprove(options.delay)
	if options.arbiter == arbiterDeny {
		presenter = coordinator.AutoDeny(options.delay)
	}
	participant := model.Participant{ID: "arbiter", Name: "Headless arbiter", Role: model.RoleArbiter}
	client, err := movegate.New(ctx, participant,
		movegate.WithConfig(&arbiterConfig),
		movegate.WithCoordinatorOptions(coordinator.WithPresenter(presenter)))
	if err != nil {
		return nil, fmt.Errorf("failed to start arbiter: %w", err)
	}
	if err = client.Start(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	if options.enable {
		if err = client.Coordinator().SetEnabled(ctx, true); err != nil {
			_ = client.Close(ctx)
			return nil, err
		}
	}
	log.Printf("headless arbiter joined, auto-%s", options.arbiter)
	return client, nil
}
