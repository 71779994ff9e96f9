package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "feescraper",
		Usage: "Scrape FeesCollected events into the fee store",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the fee scraper once, or on a schedule when --schedule is set",
				Flags:  runFlags(),
				Action: run,
			},
			{
				Name:   "remove",
				Usage:  "Remove the checkpoint of a chain so the next run starts from the start block",
				Flags:  removeFlags(),
				Action: remove,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
