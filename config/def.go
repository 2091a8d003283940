package config

import (
	"bytes"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"
)

func DefaultDeployer() *Deployer {
	return &Deployer{
		Ledger: Ledger{
			Remote: "http://localhost:26659",
		},
		Storage: Storage{
			Conn: "ipfs+http://127.0.0.1:5001",
		},
		Upload: Upload{
			Workers:     0,
			MaxAttempts: 5,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
		},
		Registry: Registry{
			BatchCapacity: 10,
			MaxAttempts:   5,
			BaseDelay:     time.Second,
			MaxDelay:      time.Minute,
		},
	}
}

func ConfigBytes(cfg interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	e := toml.NewEncoder(buf)
	if err := e.Encode(cfg); err != nil {
		return nil, xerrors.Errorf("encoding config: %w", err)
	}

	return buf.Bytes(), nil
}
