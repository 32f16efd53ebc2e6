package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Debojyoti-Gho/offline-billing-app/internal/cli"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr, cli.Open)
	if err := app.RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
