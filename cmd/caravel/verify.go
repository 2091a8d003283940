package main

import (
	"caravel/pipeline"

	"github.com/urfave/cli/v2"
)

var verifyCmd = &cli.Command{
	Name:  "verify",
	Usage: "reconcile the deployment cache against the ledger and report drift, without mutating remote state",
	Action: func(cctx *cli.Context) error {
		return runPipeline(cctx, pipeline.ModeVerify)
	},
}
