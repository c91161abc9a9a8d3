package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/g960059/devmode/internal/cli"
	"github.com/g960059/devmode/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.NewRunner(config.DefaultConfig().SocketPath, os.Stdout, os.Stderr).Run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
