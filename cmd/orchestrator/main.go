// Command orchestrator runs the timeline sequencer for one room.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/AaronLay10/SentientTimeline/internal/version"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "orchestrator:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "orchestrator"
	app.HelpName = "orchestrator"
	app.Usage = "timeline sequencer for Sentient rooms"
	app.UsageText = "orchestrator <command> [arguments...]"
	app.Version = version.Version
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "run the sequencer daemon",
			Action: runDaemon,
			Flags:  runFlags,
		},
		{
			Name:      "validate",
			Aliases:   []string{"v"},
			Usage:     "check timeline files without starting the daemon",
			ArgsUsage: "<file or dir>...",
			Action:    validate,
		},
		{
			Name:   "version",
			Usage:  "print the version",
			Action: printVersion,
		},
	}
	return app
}

func printVersion(ctx *cli.Context) error {
	fmt.Fprintf(ctx.App.Writer, "%s version %s\n", ctx.App.Name, ctx.App.Version)
	return nil
}
