package store

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("store")

// StoreBackend publishes content to a storage backend and returns the uri the
// content is reachable at. Store failures are classified transient or
// rejected via types.ErrStorageTransient / types.ErrStorageRejected.
type StoreBackend interface {
	Id() string
	Type() string
	Open() error
	Close() error
	Store(ctx context.Context, reader io.Reader, contentType string) (string, error)
}

// transientNetErr reports whether err looks like a failure worth retrying:
// timeouts, refused or reset connections, rate limiting.
func transientNetErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := err.Error()
	for _, hint := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"too many requests",
		"status 429",
		"status 500",
		"status 502",
		"status 503",
		"status 504",
	} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
