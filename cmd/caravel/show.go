package main

import (
	"fmt"

	"caravel/cache"
	"caravel/chain"
	cliutil "caravel/cmd"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"
)

var showCmd = &cli.Command{
	Name:      "show",
	Usage:     "show the on-chain state of a collection",
	ArgsUsage: "[collection-id]",
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context

		cfg, err := cliutil.LoadConfig()
		if err != nil {
			return err
		}

		collectionId := cctx.Args().First()
		if collectionId == "" {
			cachePath, err := cliutil.DeployCachePath()
			if err != nil {
				return err
			}
			dc, err := cache.Load(cachePath)
			if err != nil {
				return err
			}
			collectionId = dc.LedgerId()
		}
		if collectionId == "" {
			collectionId = cfg.Ledger.CollectionId
		}
		if collectionId == "" {
			return xerrors.Errorf("no collection id given, configured or cached")
		}

		ledger, err := chain.NewLedgerSvc(ctx, cfg.Ledger.Remote)
		if err != nil {
			return err
		}
		defer ledger.Stop(ctx) //nolint: errcheck

		state, err := ledger.GetCollectionState(ctx, collectionId)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.AppendRows([]table.Row{
			{"collection", state.LedgerId},
			{"authority", state.Authority},
			{"registered", state.RegisteredCount},
			{"capacity", state.Capacity},
		})
		fmt.Println(t.Render())
		return nil
	},
}
