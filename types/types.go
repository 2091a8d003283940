package types

// Asset is one item of the collection to deploy. The index is the sole
// identity and defines the canonical collection order.
type Asset struct {
	Index        int
	Name         string
	MediaPath    string
	MetadataPath string
}

// RegistryEntry is one registered slot of the on-chain collection registry.
type RegistryEntry struct {
	Index       uint64 `json:"index"`
	MediaUri    string `json:"media_uri"`
	MetadataUri string `json:"metadata_uri"`
}

// CollectionState mirrors the remote registry account.
type CollectionState struct {
	LedgerId        string `json:"ledger_id"`
	Authority       string `json:"authority"`
	RegisteredCount uint64 `json:"registered_count"`
	Capacity        uint64 `json:"capacity"`
}

type TxStatus string

const (
	TxPending   = TxStatus("PENDING")
	TxConfirmed = TxStatus("CONFIRMED")
	TxRejected  = TxStatus("REJECTED")
)
