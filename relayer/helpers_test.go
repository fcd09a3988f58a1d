package relayer

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/etherspot/relayx/chain"
	"github.com/etherspot/relayx/config"
)

// Well-known test key (the geth testAddr key) and the fixture addresses
// shared across the package tests.
const testKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

var (
	walletAddr   = common.HexToAddress("0x742d35cc6634c0532925a3b844bc454e4438f44e")
	usdcAddr     = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	ethUSDFeed   = common.HexToAddress("0x5f4ec3df9cbd43714fe2740f5e3616155c5b8419")
	usdcUSDFeed  = common.HexToAddress("0x8fffffd4afb6115b954bd326cbe7b4ba576818f6")
	collector    = common.HexToAddress("0x0000000000000000000000000000000000000f0f")
	relayerCalld = common.FromHex("0xc3a4e9ca00000000000000000000000000000000000000000000000000000000deadbeef")
)

const testConfigJSON = `{
	"rpcs": {"1": "https://mainnet.example", "137": "https://polygon.example"},
	"chainlink": {
		"nativeUsd": {"1": "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"},
		"tokenUsd": {
			"1": {"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48": "0x8fFfFfd4AfB6115b954Bd326cbe7B4BA576818f6"}
		}
	},
	"feeCollector": "0x0000000000000000000000000000000000000f0f",
	"privateKey": "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfigJSON), config.Overrides{})
	require.NoError(t, err)
	return cfg
}

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	return key
}

// stubClient is a scriptable chain.Client. Zero-value fields fall back to
// permissive defaults so each test overrides only what it exercises.
type stubClient struct {
	mu sync.Mutex

	gasPrice    *big.Int
	gasPriceErr error
	callFn      func(chainID uint64, msg ethereum.CallMsg) ([]byte, error)
	estimateGas uint64
	estimateErr error
	balance     *big.Int
	balanceErr  error
	nonce       uint64
	nonceErr    error
	receiptFn   func(chainID uint64, txHash common.Hash) (*gethtypes.Receipt, error)
	sendFn      func(chainID uint64, tx *gethtypes.Transaction) error

	calls        int // eth_call + eth_estimateGas invocations
	receiptCalls int
	sent         []*gethtypes.Transaction
	sentChains   []uint64
}

func newStubClient() *stubClient {
	return &stubClient{
		gasPrice:    big.NewInt(20_000_000_000),
		estimateGas: 90_000,
		balance:     new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18)),
		nonce:       7,
	}
}

func (s *stubClient) GasPrice(ctx context.Context, chainID uint64) (*big.Int, error) {
	if s.gasPriceErr != nil {
		return nil, s.gasPriceErr
	}
	return new(big.Int).Set(s.gasPrice), nil
}

func (s *stubClient) Call(ctx context.Context, chainID uint64, msg ethereum.CallMsg) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.callFn != nil {
		return s.callFn(chainID, msg)
	}
	return make([]byte, 32), nil
}

func (s *stubClient) EstimateGas(ctx context.Context, chainID uint64, msg ethereum.CallMsg) (uint64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.estimateErr != nil {
		return 0, s.estimateErr
	}
	return s.estimateGas, nil
}

func (s *stubClient) Balance(ctx context.Context, chainID uint64, account common.Address) (*big.Int, error) {
	if s.balanceErr != nil {
		return nil, s.balanceErr
	}
	return new(big.Int).Set(s.balance), nil
}

func (s *stubClient) Nonce(ctx context.Context, chainID uint64, account common.Address) (uint64, error) {
	if s.nonceErr != nil {
		return 0, s.nonceErr
	}
	return s.nonce, nil
}

func (s *stubClient) Receipt(ctx context.Context, chainID uint64, txHash common.Hash) (*gethtypes.Receipt, error) {
	s.mu.Lock()
	s.receiptCalls++
	s.mu.Unlock()
	if s.receiptFn != nil {
		return s.receiptFn(chainID, txHash)
	}
	return nil, nil
}

func (s *stubClient) SendTransaction(ctx context.Context, chainID uint64, tx *gethtypes.Transaction) error {
	if s.sendFn != nil {
		if err := s.sendFn(chainID, tx); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.sent = append(s.sent, tx)
	s.sentChains = append(s.sentChains, chainID)
	s.mu.Unlock()
	return nil
}

// feedRouter answers the oracle selectors per target address: decimals()
// from the decimals map, latestAnswer() from the answers map.
func feedRouter(decimals map[common.Address]uint8, answers map[common.Address]*big.Int) func(uint64, ethereum.CallMsg) ([]byte, error) {
	return func(chainID uint64, msg ethereum.CallMsg) ([]byte, error) {
		out := make([]byte, 32)
		switch {
		case bytes.Equal(msg.Data, selectorDecimals):
			out[31] = decimals[*msg.To]
		case bytes.Equal(msg.Data, selectorLatestAnswer):
			answers[*msg.To].FillBytes(out[16:])
		}
		return out, nil
	}
}

var _ chain.Client = (*stubClient)(nil)
