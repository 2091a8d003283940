package main

import (
	"caravel/config"

	cliutil "caravel/cmd"

	"github.com/urfave/cli/v2"
)

var initCmd = &cli.Command{
	Name:      "init",
	Usage:     "initialize the caravel repo with a default config",
	ArgsUsage: "[collection-id]",
	Action: func(cctx *cli.Context) error {
		cfg := config.DefaultDeployer()
		if collectionId := cctx.Args().First(); collectionId != "" {
			cfg.Ledger.CollectionId = collectionId
		}

		repoPath, err := cliutil.InitRepo(cfg)
		if err != nil {
			return err
		}
		log.Infof("repo initialized at %s", repoPath)
		return nil
	},
}
