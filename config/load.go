package config

import (
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/xerrors"
)

const envPrefix = "CARAVEL"

// FromFile loads config from path on top of def. An absent file yields the
// defaults, env var overrides still apply.
func FromFile(path string, def *Deployer) (*Deployer, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fromEnv(def)
		}
		return nil, err
	}
	defer file.Close() //nolint: errcheck

	return FromReader(file, def)
}

// FromReader loads config from a reader instance.
func FromReader(reader io.Reader, def *Deployer) (*Deployer, error) {
	cfg := def
	_, err := toml.NewDecoder(reader).Decode(cfg)
	if err != nil {
		return nil, xerrors.Errorf("decoding config: %w", err)
	}

	return fromEnv(cfg)
}

func fromEnv(cfg *Deployer) (*Deployer, error) {
	err := envconfig.Process(envPrefix, cfg)
	if err != nil {
		return nil, xerrors.Errorf("processing env vars overrides: %w", err)
	}

	return cfg, nil
}
