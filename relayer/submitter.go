package relayer

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/etherspot/relayx/chain"
)

// Submitter signs legacy transactions with the relayer key and broadcasts
// them. Broadcasts on the same chain are serialized so the nonce read,
// the signature and the send form one sequence per chain; without this,
// concurrent intake could double-spend a nonce.
type Submitter struct {
	client chain.Client
	key    *ecdsa.PrivateKey
	from   common.Address
	stub   bool
	logger log.Logger

	mu         sync.Mutex
	chainLocks map[uint64]*sync.Mutex
}

// NewSubmitter wraps the relayer signing key. With stub enabled it
// returns synthetic hashes without touching the chain.
func NewSubmitter(client chain.Client, key *ecdsa.PrivateKey, stub bool) *Submitter {
	s := &Submitter{
		client:     client,
		key:        key,
		stub:       stub,
		logger:     log.New("component", "submitter"),
		chainLocks: make(map[uint64]*sync.Mutex),
	}
	if key != nil {
		s.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return s
}

// From is the relayer address derived from the signing key.
func (s *Submitter) From() common.Address { return s.from }

func (s *Submitter) chainLock(chainID uint64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.chainLocks[chainID]
	if !ok {
		l = new(sync.Mutex)
		s.chainLocks[chainID] = l
	}
	return l
}

// Broadcast signs and sends one legacy transaction and returns its hash
// and the nonce it went out with. It does not wait for mining and does
// not touch the store; failures are surfaced verbatim.
func (s *Submitter) Broadcast(ctx context.Context, to common.Address, data []byte, chainID uint64, gasLimit uint64, gasPrice *big.Int) (common.Hash, uint64, error) {
	if s.stub {
		return syntheticHash(chainID, data), 0, nil
	}
	lock := s.chainLock(chainID)
	lock.Lock()
	defer lock.Unlock()

	nonce, err := s.client.Nonce(ctx, chainID, s.from)
	if err != nil {
		return common.Hash{}, 0, err
	}
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signer := gethtypes.LatestSignerForChainID(new(big.Int).SetUint64(chainID))
	signed, err := gethtypes.SignTx(tx, signer, s.key)
	if err != nil {
		return common.Hash{}, 0, err
	}
	if err := s.client.SendTransaction(ctx, chainID, signed); err != nil {
		return common.Hash{}, 0, err
	}
	s.logger.Debug("broadcast", "chain", chainID, "hash", signed.Hash(), "nonce", nonce, "gasPrice", gasPrice)
	return signed.Hash(), nonce, nil
}

// syntheticHash fabricates a unique hash for stub mode.
func syntheticHash(chainID uint64, data []byte) common.Hash {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], chainID)
	binary.BigEndian.PutUint64(buf[8:], uint64(time.Now().UnixNano()))
	return crypto.Keccak256Hash(buf[:], data)
}
