package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/transparencyx/chaintrace/flags"
)

var (
	GitCommit = ""
	GitDate   = ""
)

func main() {
	setupLogging(log.LevelInfo, false)

	app := NewCli(GitCommit, GitDate)
	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Error("application failed", "err", err)
		os.Exit(1)
	}
}

func setupLogging(lvl slog.Level, color bool) {
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stdout, lvl, color)))
}

// configureLogging applies --log.level and --log.color once the command flags are parsed.
func configureLogging(ctx *cli.Context) error {
	lvl, err := log.LvlFromString(ctx.String(flags.LogLevelFlag.Name))
	if err != nil {
		return err
	}
	setupLogging(lvl, ctx.Bool(flags.LogColorFlag.Name))
	return nil
}
