package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hray3182/fakturavakt/internal/cli"
	"github.com/hray3182/fakturavakt/internal/logger"
)

func main() {
	// Commands replace this with the configured logger once config is read.
	if _, err := logger.Setup(logger.DefaultConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	root := cli.NewRootCommand(cli.DefaultEnv())
	if err := root.ExecuteContext(context.Background()); err != nil {
		log := logger.WithComponent("cmd")
		log.Debug().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
