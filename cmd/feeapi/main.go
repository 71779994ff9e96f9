package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "feeapi",
		Usage: "Serve collected fees per integrator over HTTP",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the fee query API",
				Flags:  serveFlags(),
				Action: serve,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
