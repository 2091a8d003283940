package main

import (
	"os"

	cliutil "caravel/cmd"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
)

var log = logging.Logger("caravel")

func before(_ *cli.Context) error {
	_ = logging.SetLogLevel("caravel", "INFO")
	_ = logging.SetLogLevel("catalog", "INFO")
	_ = logging.SetLogLevel("cache", "INFO")
	_ = logging.SetLogLevel("store", "INFO")
	_ = logging.SetLogLevel("chain", "INFO")
	_ = logging.SetLogLevel("pipeline", "INFO")
	if cliutil.IsVeryVerbose {
		_ = logging.SetLogLevel("caravel", "DEBUG")
		_ = logging.SetLogLevel("catalog", "DEBUG")
		_ = logging.SetLogLevel("cache", "DEBUG")
		_ = logging.SetLogLevel("store", "DEBUG")
		_ = logging.SetLogLevel("chain", "DEBUG")
		_ = logging.SetLogLevel("pipeline", "DEBUG")
	}

	return nil
}

func main() {
	app := &cli.App{
		Name:                 cliutil.APP_NAME,
		Usage:                "Command line for deploying asset collections to the registry chain",
		EnableBashCompletion: true,
		Before:               before,
		Flags: []cli.Flag{
			cliutil.FlagRepo,
			cliutil.FlagLedgerAddress,
			cliutil.FlagCache,
			cliutil.FlagVeryVerbose,
		},
		Commands: []*cli.Command{
			initCmd,
			deployCmd,
			uploadCmd,
			verifyCmd,
			showCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			os.Exit(exitErr.ExitCode())
		}
		log.Errorf("%+v", err)
		os.Exit(1)
	}
}
