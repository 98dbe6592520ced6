// Package main runs a movegate websocket hub, optionally with a headless
// arbiter that decides every request automatically.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	options, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[MOVEGATE] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, options); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
