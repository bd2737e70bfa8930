package main

import (
	"context"
	"os"

	"budgetwise/internal/cli"
)

func main() {
	cli.LoadEnvFile()
	if err := cli.Run(context.Background(), cli.Options{}, os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
