package chain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"caravel/types"
	"caravel/utils"

	"golang.org/x/xerrors"
)

const requestTimeout = 30 * time.Second

// registryClient speaks the collection registry's http api. The wire shape is
// the registry's business, everything is classified into the ledger error
// taxonomy at this boundary.
type registryClient struct {
	endpoint string
	hc       *http.Client
}

func newRegistryClient(ledgerAddress string) (*registryClient, error) {
	parsed, err := url.Parse(ledgerAddress)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, xerrors.Errorf("unsupported ledger connection protocol: %s", ledgerAddress)
	}

	return &registryClient{
		endpoint: strings.TrimRight(ledgerAddress, "/"),
		hc: &http.Client{
			Timeout: requestTimeout,
		},
	}, nil
}

type submitBatchRequest struct {
	Entries []types.RegistryEntry `json:"entries"`
}

type txResponse struct {
	Tx     string         `json:"tx"`
	Status types.TxStatus `json:"status"`
	Reason string         `json:"reason,omitempty"`
}

func (rc *registryClient) getCollectionState(ctx context.Context, ledgerId string) (*types.CollectionState, error) {
	raw, status, err := rc.do(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", rc.endpoint, ledgerId), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, classifyStatus(status, raw)
	}

	var state types.CollectionState
	if err = utils.Unmarshal(raw, &state); err != nil {
		return nil, types.Wrap(types.ErrLedgerFatal, err)
	}
	return &state, nil
}

func (rc *registryClient) getRegistered(ctx context.Context, ledgerId string, index uint64) (*types.RegistryEntry, error) {
	raw, status, err := rc.do(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s/entries/%d", rc.endpoint, ledgerId, index), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		// slot not registered
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, classifyStatus(status, raw)
	}

	var entry types.RegistryEntry
	if err = utils.Unmarshal(raw, &entry); err != nil {
		return nil, types.Wrap(types.ErrLedgerFatal, err)
	}
	return &entry, nil
}

func (rc *registryClient) submitBatch(ctx context.Context, ledgerId string, entries []types.RegistryEntry) (string, types.TxStatus, error) {
	body, err := utils.Marshal(&submitBatchRequest{Entries: entries})
	if err != nil {
		return "", "", types.Wrap(types.ErrLedgerFatal, err)
	}

	raw, status, err := rc.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/entries", rc.endpoint, ledgerId), body)
	if err != nil {
		return "", "", err
	}
	if status != http.StatusOK && status != http.StatusAccepted {
		return "", "", classifyStatus(status, raw)
	}

	var resp txResponse
	if err = utils.Unmarshal(raw, &resp); err != nil {
		return "", "", types.Wrap(types.ErrLedgerFatal, err)
	}
	return resp.Tx, resp.Status, nil
}

func (rc *registryClient) txStatus(ctx context.Context, ledgerId string, txHash string) (types.TxStatus, error) {
	raw, status, err := rc.do(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s/txs/%s", rc.endpoint, ledgerId, txHash), nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", classifyStatus(status, raw)
	}

	var resp txResponse
	if err = utils.Unmarshal(raw, &resp); err != nil {
		return "", types.Wrap(types.ErrLedgerFatal, err)
	}
	return resp.Status, nil
}

func (rc *registryClient) do(ctx context.Context, method string, rawUrl string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawUrl, reader)
	if err != nil {
		return nil, 0, types.Wrap(types.ErrLedgerFatal, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := rc.hc.Do(req)
	if err != nil {
		// network level failure, the ledger may just be congested
		return nil, 0, types.Wrap(types.ErrLedgerTransient, err)
	}
	defer resp.Body.Close() //nolint: errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, types.Wrap(types.ErrLedgerTransient, err)
	}
	return raw, resp.StatusCode, nil
}

func classifyStatus(status int, raw []byte) error {
	detail := strings.TrimSpace(string(raw))
	if len(detail) > 256 {
		detail = detail[:256]
	}

	switch {
	case status == http.StatusConflict:
		return types.Wrapf(types.ErrLedgerConflict, "status %d: %s", status, detail)
	case status == http.StatusTooManyRequests || status >= 500:
		return types.Wrapf(types.ErrLedgerTransient, "status %d: %s", status, detail)
	default:
		return types.Wrapf(types.ErrLedgerFatal, "status %d: %s", status, detail)
	}
}
