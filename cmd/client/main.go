// Package main runs the interactive relay client. Type a line to chat, or
// "exit" to leave.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/relay/internal/client"
)

func main() {
	log.SetPrefix("[RELAY] ")

	cfg, err := client.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.New(cfg).Run(ctx, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("client: %v", err)
	}
}
