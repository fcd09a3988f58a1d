package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key families. The store is treated as ephemeral across major upgrades;
// there is no schema versioning.
//
//	request:{uuid}                      -> JSON request record
//	resubmission:{uuid}:{chain}:{hash}  -> JSON resubmission event
//
// Resubmission keys sort lexicographically per request, which matches
// insertion order closely enough: the chain id is a short decimal and the
// transaction hash is fixed-length hex.
var (
	requestPrefix      = []byte("request:")
	resubmissionPrefix = []byte("resubmission:")
)

func requestKey(id string) []byte {
	return append(append([]byte{}, requestPrefix...), id...)
}

func resubmissionKey(id string, chainID uint64, txHash common.Hash) []byte {
	return []byte(fmt.Sprintf("resubmission:%s:%d:%s", id, chainID, txHash.Hex()))
}

func resubmissionScanPrefix(id string) []byte {
	return []byte(fmt.Sprintf("resubmission:%s:", id))
}
