/*
Package main is the entry point of the planning poker terminal client.

Arguments run as a first command (for example "poker join ABC234 bob"), after which
the client reads commands from standard input until exit.
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"planpoker/internal/cli"
)

func main() {
	// A missing .env is normal; flags, $HOME/.poker.yaml and the environment still apply.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.New(os.Stdout, os.Stderr).Main(ctx, os.Args[1:], os.Stdin)
	stop()

	os.Exit(code)
}
