// Package chain wraps per-chain JSON-RPC endpoints behind a narrow client
// interface so the lifecycle components can be tested against stubs. No
// retries happen at this layer; callers decide.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/etherspot/relayx/config"
)

// ErrorKind classifies chain client failures.
type ErrorKind int

const (
	// KindTransport covers connection, timeout and endpoint errors.
	KindTransport ErrorKind = iota
	// KindDecode covers malformed responses.
	KindDecode
	// KindReverted means the node executed the call and it reverted;
	// RevertData carries the return payload when the node exposed it.
	KindReverted
)

// Error is the failure type for every client method.
type Error struct {
	Kind       ErrorKind
	Message    string
	RevertData []byte
}

func (e *Error) Error() string { return e.Message }

// Reverted reports whether err is a chain revert.
func Reverted(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == KindReverted
}

// Client is the per-chain JSON-RPC surface the relayer core consumes.
// Receipt returns (nil, nil) when the transaction is not mined yet.
type Client interface {
	GasPrice(ctx context.Context, chainID uint64) (*big.Int, error)
	Call(ctx context.Context, chainID uint64, msg ethereum.CallMsg) ([]byte, error)
	EstimateGas(ctx context.Context, chainID uint64, msg ethereum.CallMsg) (uint64, error)
	Balance(ctx context.Context, chainID uint64, account common.Address) (*big.Int, error)
	Nonce(ctx context.Context, chainID uint64, account common.Address) (uint64, error)
	Receipt(ctx context.Context, chainID uint64, txHash common.Hash) (*gethtypes.Receipt, error)
	SendTransaction(ctx context.Context, chainID uint64, tx *gethtypes.Transaction) error
}

// Pool is the production Client. It dials endpoints lazily from the
// resolver and keeps one shared connection per chain, reused across tasks.
type Pool struct {
	cfg     *config.Config
	timeout time.Duration
	oracle  *EtherscanOracle // optional fallback gas source, may be nil
	logger  log.Logger

	mu      sync.Mutex
	clients map[uint64]*ethclient.Client
}

// NewPool builds a connection pool over the configured endpoints. When an
// etherscan API key is configured, the gas tracker is wired as a fallback
// price source for mainnet.
func NewPool(cfg *config.Config) *Pool {
	p := &Pool{
		cfg:     cfg,
		timeout: cfg.RequestTimeout(),
		logger:  log.New("component", "chain"),
		clients: make(map[uint64]*ethclient.Client),
	}
	if key := cfg.EtherscanAPIKey(); key != "" {
		p.oracle = NewEtherscanOracle(key)
	}
	return p
}

func (p *Pool) client(chainID uint64) (*ethclient.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[chainID]; ok {
		return c, nil
	}
	url, ok := p.cfg.RPCURL(chainID)
	if !ok {
		return nil, &Error{Kind: KindTransport, Message: fmt.Sprintf("no RPC endpoint for chain %d", chainID)}
	}
	c, err := ethclient.Dial(url)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: fmt.Sprintf("dial chain %d: %v", chainID, err)}
	}
	p.clients[chainID] = c
	return c, nil
}

func (p *Pool) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.timeout)
}

// wrapError folds an ethclient failure into the chain error taxonomy.
// Reverts surface through the rpc DataError interface with a hex payload.
func wrapError(op string, err error) error {
	var de rpc.DataError
	if errors.As(err, &de) {
		data, _ := de.ErrorData().(string)
		return &Error{
			Kind:       KindReverted,
			Message:    fmt.Sprintf("%s: %v", op, err),
			RevertData: common.FromHex(data),
		}
	}
	return &Error{Kind: KindTransport, Message: fmt.Sprintf("%s: %v", op, err)}
}

// GasPrice reads the chain's suggested gas price, falling back to the
// etherscan gas tracker on mainnet when configured.
func (p *Pool) GasPrice(ctx context.Context, chainID uint64) (*big.Int, error) {
	c, err := p.client(chainID)
	if err != nil {
		return nil, err
	}
	cctx, cancel := p.withTimeout(ctx)
	defer cancel()
	price, err := c.SuggestGasPrice(cctx)
	if err != nil {
		if p.oracle != nil && chainID == 1 {
			p.logger.Warn("RPC gas price failed, using etherscan", "err", err)
			return p.oracle.GasPrice(ctx)
		}
		return nil, wrapError("eth_gasPrice", err)
	}
	return price, nil
}

func (p *Pool) Call(ctx context.Context, chainID uint64, msg ethereum.CallMsg) ([]byte, error) {
	c, err := p.client(chainID)
	if err != nil {
		return nil, err
	}
	cctx, cancel := p.withTimeout(ctx)
	defer cancel()
	out, err := c.CallContract(cctx, msg, nil)
	if err != nil {
		return nil, wrapError("eth_call", err)
	}
	return out, nil
}

func (p *Pool) EstimateGas(ctx context.Context, chainID uint64, msg ethereum.CallMsg) (uint64, error) {
	c, err := p.client(chainID)
	if err != nil {
		return 0, err
	}
	cctx, cancel := p.withTimeout(ctx)
	defer cancel()
	gas, err := c.EstimateGas(cctx, msg)
	if err != nil {
		return 0, wrapError("eth_estimateGas", err)
	}
	return gas, nil
}

func (p *Pool) Balance(ctx context.Context, chainID uint64, account common.Address) (*big.Int, error) {
	c, err := p.client(chainID)
	if err != nil {
		return nil, err
	}
	cctx, cancel := p.withTimeout(ctx)
	defer cancel()
	bal, err := c.BalanceAt(cctx, account, nil)
	if err != nil {
		return nil, wrapError("eth_getBalance", err)
	}
	return bal, nil
}

func (p *Pool) Nonce(ctx context.Context, chainID uint64, account common.Address) (uint64, error) {
	c, err := p.client(chainID)
	if err != nil {
		return 0, err
	}
	cctx, cancel := p.withTimeout(ctx)
	defer cancel()
	nonce, err := c.NonceAt(cctx, account, nil)
	if err != nil {
		return 0, wrapError("eth_getTransactionCount", err)
	}
	return nonce, nil
}

func (p *Pool) Receipt(ctx context.Context, chainID uint64, txHash common.Hash) (*gethtypes.Receipt, error) {
	c, err := p.client(chainID)
	if err != nil {
		return nil, err
	}
	cctx, cancel := p.withTimeout(ctx)
	defer cancel()
	receipt, err := c.TransactionReceipt(cctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError("eth_getTransactionReceipt", err)
	}
	return receipt, nil
}

func (p *Pool) SendTransaction(ctx context.Context, chainID uint64, tx *gethtypes.Transaction) error {
	c, err := p.client(chainID)
	if err != nil {
		return err
	}
	cctx, cancel := p.withTimeout(ctx)
	defer cancel()
	if err := c.SendTransaction(cctx, tx); err != nil {
		return wrapError("eth_sendRawTransaction", err)
	}
	return nil
}
