package utils

import (
	"strings"

	"github.com/ipfs/go-cid"
	jsoniter "github.com/json-iterator/go"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-multihash"
	uuid "github.com/satori/go.uuid"
	"golang.org/x/xerrors"
)

const UriSchemeIpfs = "ipfs://"

func IsStorageUri(content string) bool {
	return strings.HasPrefix(content, UriSchemeIpfs)
}

func GenerateRunId() string {
	return uuid.NewV4().String()
}

func Marshal(obj interface{}) ([]byte, error) {
	b, err := jsoniter.Marshal(obj)
	if err != nil {
		return nil, xerrors.Errorf(err.Error())
	}

	return b, nil
}

func Unmarshal(jsonBytes []byte, obj interface{}) error {
	err := jsoniter.Unmarshal(jsonBytes, obj)
	if err != nil {
		return xerrors.Errorf(err.Error())
	}

	return nil
}

// CalculateCid computes the v1 cid the storage backend is expected to assign
// to content, so an upload result can be verified locally.
func CalculateCid(content []byte) (cid.Cid, error) {
	pref := cid.Prefix{
		Version:  1,
		Codec:    uint64(multicodec.Raw),
		MhType:   multihash.SHA2_256,
		MhLength: -1, // default length
	}

	contentCid, err := pref.Sum(content)
	if err != nil {
		return cid.Undef, err
	}

	return contentCid, nil
}
