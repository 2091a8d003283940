package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"caravel/cache"
	"caravel/catalog"
	"caravel/chain"
	cliutil "caravel/cmd"
	"caravel/pipeline"
	"caravel/store"

	"github.com/urfave/cli/v2"
)

const defaultAssetsDir = "assets"

var deployCmd = &cli.Command{
	Name:      "deploy",
	Usage:     "upload pending assets and register them into the collection registry",
	ArgsUsage: "[assets-dir]",
	Action: func(cctx *cli.Context) error {
		return runPipeline(cctx, pipeline.ModeDeploy)
	},
}

var uploadCmd = &cli.Command{
	Name:      "upload",
	Usage:     "upload pending assets and refresh the deployment cache, without touching the ledger",
	ArgsUsage: "[assets-dir]",
	Action: func(cctx *cli.Context) error {
		return runPipeline(cctx, pipeline.ModeUpload)
	},
}

func runPipeline(cctx *cli.Context, mode pipeline.Mode) error {
	ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	assetsDir := cctx.Args().First()
	if assetsDir == "" {
		assetsDir = defaultAssetsDir
	}

	cfg, err := cliutil.LoadConfig()
	if err != nil {
		return err
	}

	// verify only talks to the ledger and the cache, no assets needed
	var cat *catalog.Catalog
	if mode != pipeline.ModeVerify {
		cat, err = catalog.Load(assetsDir)
		if err != nil {
			return err
		}
	}

	cachePath, err := cliutil.DeployCachePath()
	if err != nil {
		return err
	}
	dc, err := cache.Load(cachePath)
	if err != nil {
		return err
	}

	ledger, err := chain.NewLedgerSvc(ctx, cfg.Ledger.Remote)
	if err != nil {
		return err
	}
	defer ledger.Stop(ctx) //nolint: errcheck

	backend, err := store.NewIpfsBackend(cfg.Storage.Conn)
	if err != nil {
		return err
	}
	if err = backend.Open(); err != nil {
		return err
	}
	defer backend.Close() //nolint: errcheck

	driver, err := pipeline.NewDriver(cfg, cat, dc, ledger, backend, mode)
	if err != nil {
		return err
	}

	report, err := driver.Run(ctx)
	if report != nil {
		fmt.Println(report.Render())
	}
	if err != nil {
		return err
	}
	if report.Fatal() {
		return cli.Exit("one or more assets failed, fix and re-run to resume", 1)
	}
	if ctx.Err() != nil {
		return cli.Exit("interrupted, cache persisted, re-run to resume", 1)
	}
	return nil
}
