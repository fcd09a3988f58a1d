// Package types holds the persisted record shapes shared by the store,
// the lifecycle coordinator and the RPC facade.
package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Request is the central persisted entity: one relayed transaction from
// intake to its terminal state. Handles passed around the process are
// clones; the store owns the canonical bytes.
type Request struct {
	ID           string         `json:"id"`
	ChainID      uint64         `json:"chainId"`
	To           common.Address `json:"to"`
	Data         hexutil.Bytes  `json:"data"`
	Payment      Payment        `json:"payment"`
	GasLimit     uint64         `json:"gasLimit"`
	GasPrice     string         `json:"gasPrice"` // hex wei, updated on each resubmission
	Nonce        uint64         `json:"nonce"`
	TxHash       *common.Hash   `json:"transactionHash"` // nil until the first broadcast
	Status       Status         `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

// Copy returns a deep clone of the request.
func (r *Request) Copy() *Request {
	cpy := *r
	cpy.Data = make(hexutil.Bytes, len(r.Data))
	copy(cpy.Data, r.Data)
	if r.TxHash != nil {
		h := *r.TxHash
		cpy.TxHash = &h
	}
	return &cpy
}

// Resubmission records one rebroadcast of a stuck request with a bumped
// gas price. Entries are append-only per request.
type Resubmission struct {
	TxHash     common.Hash `json:"transactionHash"`
	ChainID    uint64      `json:"chainId"`
	StatusCode int         `json:"status"` // monitor tag, HTTP-shaped
}
