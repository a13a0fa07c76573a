package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/transparencyx/chaintrace"
	"github.com/transparencyx/chaintrace/common/cliapp"
	"github.com/transparencyx/chaintrace/common/errs"
	"github.com/transparencyx/chaintrace/config"
	"github.com/transparencyx/chaintrace/database"
	"github.com/transparencyx/chaintrace/flags"
	"github.com/transparencyx/chaintrace/warehouse"
)

// requestedByCli labels trace jobs started from the command line.
const requestedByCli = "cli"

func runIndexer(ctx *cli.Context, shutdown context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	log.Info("running indexer and api")
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Error("failed to load config", "err", err)
		return nil, err
	}
	if err := cfg.CheckIndexing(); err != nil {
		return nil, err
	}
	return chaintrace.NewChainTrace(ctx.Context, &cfg, shutdown, true)
}

func runApi(ctx *cli.Context, shutdown context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	log.Info("running api")
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Error("failed to load config", "err", err)
		return nil, err
	}
	return chaintrace.NewChainTrace(ctx.Context, &cfg, shutdown, false)
}

func runTrace(ctx *cli.Context) error {
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Error("failed to load config", "err", err)
		return err
	}
	b, err := hexutil.Decode(ctx.String(flags.TxHashFlag.Name))
	if err != nil || len(b) != common.HashLength {
		return errs.NewValidation(flags.TxHashFlag.Name, "not a 32 byte 0x-prefixed hash")
	}

	services, err := chaintrace.OpenServices(ctx.Context, &cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	flow, err := services.Tracer.TracePaymentChain(ctx.Context, common.BytesToHash(b), requestedByCli)
	if err != nil {
		return err
	}
	renderFlow(ctx.App.Writer, flow)
	return nil
}

func runQuery(ctx *cli.Context) error {
	name := ctx.Args().First()
	if name == "" {
		return fmt.Errorf("query name required, one of %v", queryNames())
	}
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Error("failed to load config", "err", err)
		return err
	}
	wh, err := warehouse.Open(ctx.Context, cfg.Warehouse)
	if err != nil {
		return err
	}
	defer wh.Close()
	return runNamedQuery(ctx.Context, ctx.App.Writer, wh, name, queryParamsFrom(ctx))
}

func runMigrations(ctx *cli.Context) error {
	log.Info("running migrations")
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Error("failed to load config", "err", err)
		return err
	}
	db, err := database.NewDB(ctx.Context, cfg.MasterDB)
	if err != nil {
		log.Error("failed to connect to database", "err", err)
		return err
	}
	defer db.Close()

	if err := db.ExecuteSQLMigration(ctx.String(flags.MigrationsFlag.Name)); err != nil {
		return err
	}

	wh, err := warehouse.Open(ctx.Context, cfg.Warehouse)
	if err != nil {
		return err
	}
	defer wh.Close()
	if err := wh.EnsureSchema(ctx.Context); err != nil {
		return err
	}
	log.Info("migrations complete")
	return nil
}

func NewCli(gitCommit string, gitDate string) *cli.App {
	myFlags := flags.Flags
	version := "v0.1.0"
	if gitCommit != "" {
		version = fmt.Sprintf("%s-%.8s-%s", version, gitCommit, gitDate)
	}
	return &cli.App{
		Name:                 "chaintrace",
		Version:              version,
		Description:          "Follows procurement payments from government to sub-supplier and serves the analytics",
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:        "index",
				Description: "Runs the synchronizer, the event mirror and the api server",
				Flags:       myFlags,
				Before:      configureLogging,
				Action:      cliapp.LifecycleCmd(runIndexer),
			},
			{
				Name:        "api",
				Description: "Runs the api server only",
				Flags:       myFlags,
				Before:      configureLogging,
				Action:      cliapp.LifecycleCmd(runApi),
			},
			{
				Name:        "trace",
				Description: "Traces one transaction, stores its payment flow and prints the participants",
				Flags:       append([]cli.Flag{flags.TxHashFlag}, myFlags...),
				Before:      configureLogging,
				Action:      runTrace,
			},
			{
				Name:        "query",
				ArgsUsage:   "<name>",
				Description: fmt.Sprintf("Runs one analytics query and prints the rows: %v", queryNames()),
				Flags:       append(append([]cli.Flag{}, flags.QueryFlags...), myFlags...),
				Before:      configureLogging,
				Action:      runQuery,
			},
			{
				Name:        "migrate",
				Description: "Runs the database migrations and creates the warehouse schema",
				Flags:       append([]cli.Flag{flags.MigrationsFlag}, myFlags...),
				Before:      configureLogging,
				Action:      runMigrations,
			},
			{
				Name:        "version",
				Description: "print version",
				Action: func(ctx *cli.Context) error {
					cli.ShowVersion(ctx)
					return nil
				},
			},
		},
	}
}
