package store

import (
	"context"
	"fmt"
	"io"
	"strings"

	"caravel/types"
	"caravel/utils"

	"github.com/ipfs/go-cid"
	shell "github.com/ipfs/go-ipfs-api"
)

type IpfsBackend struct {
	ipfsAddress string
	ipfsApi     *shell.Shell
}

func NewIpfsBackend(connectionString string) (*IpfsBackend, error) {
	var conn string
	if strings.HasPrefix(connectionString, "ipfs+http") {
		conn = strings.Replace(connectionString, "ipfs+http", "http", 1)
	} else if strings.HasPrefix(connectionString, "ipfs+https") {
		conn = strings.Replace(connectionString, "ipfs+https", "https", 1)
	} else if strings.HasPrefix(connectionString, "ipfs+ma:") {
		conn = strings.Replace(connectionString, "ipfs+ma:", "", 1)
	} else {
		return nil, types.Wrapf(types.ErrOpenBackendFailed, "unsupported ipfs connection protocol: %s", connectionString)
	}

	b := IpfsBackend{
		ipfsAddress: conn,
	}
	return &b, nil
}

func (b *IpfsBackend) Id() string {
	return fmt.Sprintf("%s-%s", b.Type(), b.ipfsAddress)
}

func (b *IpfsBackend) Type() string {
	return "ipfs"
}

func (b *IpfsBackend) Open() error {
	b.ipfsApi = shell.NewShell(b.ipfsAddress)
	return nil
}

func (b *IpfsBackend) Close() error {
	return nil
}

// Store pins the content and returns its ipfs:// uri. The content type is
// ignored, ipfs addresses content by digest only.
func (b *IpfsBackend) Store(ctx context.Context, reader io.Reader, contentType string) (string, error) {
	hash, err := b.ipfsApi.Add(reader, shell.Pin(true), shell.CidVersion(1))
	if err != nil {
		if transientNetErr(err) {
			return "", types.Wrap(types.ErrStorageTransient, err)
		}
		return "", types.Wrap(types.ErrStorageRejected, err)
	}

	if _, err = cid.Decode(hash); err != nil {
		return "", types.Wrapf(types.ErrStorageRejected, "backend returned invalid cid %q: %v", hash, err)
	}

	log.Debugf("%s store hash: %v", b.Id(), hash)
	return utils.UriSchemeIpfs + hash, nil
}

func (b *IpfsBackend) Get(c cid.Cid) (io.ReadCloser, error) {
	return b.ipfsApi.Cat(c.String())
}
