package cliutil

import (
	"os"
	"path/filepath"

	"caravel/config"

	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"
)

var ErrRepoExists = xerrors.New("repo exists")

const (
	APP_NAME       = "caravel"
	FsConfig       = "config.toml"
	FsDeployCache  = "cache.json"
	DefaultRepoDir = "~/.caravel"
)

var Repo string
var FlagRepo = &cli.StringFlag{
	Name:        "repo",
	Usage:       "repo directory for caravel config and deployment cache",
	EnvVars:     []string{"CARAVEL_PATH"},
	Value:       DefaultRepoDir,
	Destination: &Repo,
}

var LedgerAddress string
var FlagLedgerAddress = &cli.StringFlag{
	Name:        "ledger-address",
	Usage:       "collection registry api, overrides the configured one",
	EnvVars:     []string{"CARAVEL_LEDGER_API"},
	Destination: &LedgerAddress,
}

var CachePath string
var FlagCache = &cli.StringFlag{
	Name:        "cache",
	Usage:       "path to the deployment cache file, defaults to <repo>/cache.json",
	EnvVars:     []string{"CARAVEL_CACHE"},
	Destination: &CachePath,
}

// IsVeryVerbose is a global var signalling if the CLI is running in very
// verbose mode or not (default: false).
var IsVeryVerbose bool

// FlagVeryVerbose enables very verbose mode, which is useful when debugging
// the CLI itself. It should be included as a flag on the top-level command
// (e.g. caravel -vv).
var FlagVeryVerbose = &cli.BoolFlag{
	Name:        "vv",
	Usage:       "enables very verbose mode, useful for debugging the CLI",
	Destination: &IsVeryVerbose,
}

func RepoPath() (string, error) {
	return homedir.Expand(Repo)
}

// InitRepo creates the repo directory and seeds it with cfg serialized as
// config.toml. Returns ErrRepoExists if a config is already present.
func InitRepo(cfg *config.Deployer) (string, error) {
	repoPath, err := RepoPath()
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(repoPath, 0755); err != nil {
		return "", err
	}

	configPath := filepath.Join(repoPath, FsConfig)
	if _, err = os.Stat(configPath); err == nil {
		return "", ErrRepoExists
	} else if !os.IsNotExist(err) {
		return "", err
	}

	raw, err := config.ConfigBytes(cfg)
	if err != nil {
		return "", err
	}
	if err = os.WriteFile(configPath, raw, 0644); err != nil {
		return "", err
	}
	return repoPath, nil
}

// LoadConfig reads <repo>/config.toml over the defaults, with env overrides.
func LoadConfig() (*config.Deployer, error) {
	repoPath, err := RepoPath()
	if err != nil {
		return nil, err
	}

	cfg, err := config.FromFile(filepath.Join(repoPath, FsConfig), config.DefaultDeployer())
	if err != nil {
		return nil, err
	}

	if LedgerAddress != "" {
		cfg.Ledger.Remote = LedgerAddress
	}
	return cfg, nil
}

// DeployCachePath resolves the cache file location, honoring --cache.
func DeployCachePath() (string, error) {
	if CachePath != "" {
		return CachePath, nil
	}
	repoPath, err := RepoPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(repoPath, FsDeployCache), nil
}
