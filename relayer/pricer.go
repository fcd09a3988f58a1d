package relayer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/log"

	"github.com/etherspot/relayx/chain"
	"github.com/etherspot/relayx/config"
)

// Chainlink aggregator and ERC-20 selectors. Both feed reads are plain
// eth_calls; no ABI machinery is needed for two scalar words.
var (
	selectorDecimals     = []byte{0x31, 0x3c, 0xe5, 0x67} // decimals()
	selectorLatestAnswer = []byte{0x50, 0xd2, 0x5b, 0xcd} // latestAnswer()
)

// defaultGasPriceWei is the 20 Gwei fallback when the chain cannot answer
// eth_gasPrice.
var defaultGasPriceWei = big.NewInt(20_000_000_000)

// quoteValidity bounds how long a returned rate may be used.
const quoteValidity = 600 * time.Second

// feedCacheTTL bounds oracle read reuse, well under quoteValidity.
const feedCacheTTL = 5 * time.Second

// FeeQuote is a priced (chain, token) pair.
type FeeQuote struct {
	Rate         string         // token per gas unit, decimal
	GasPrice     string         // hex wei
	FeeCollector common.Address // zero when unconfigured
	Expiry       int64          // unix seconds
	Token        TokenInfo
}

// TokenInfo describes the payment token of a quote.
type TokenInfo struct {
	Address  common.Address
	Decimals uint8
}

type feedKey struct {
	chainID uint64
	feed    common.Address
}

type feedReading struct {
	answer   *big.Int
	decimals uint8
	fetched  time.Time
}

// Pricer computes token-denominated gas rates from the chain's gas price
// and a pair of Chainlink USD feeds. Oracle reads are cached briefly.
type Pricer struct {
	client chain.Client
	cfg    *config.Config
	cache  *lru.Cache[feedKey, feedReading]
	logger log.Logger
}

func NewPricer(client chain.Client, cfg *config.Config) *Pricer {
	return &Pricer{
		client: client,
		cfg:    cfg,
		cache:  lru.NewCache[feedKey, feedReading](64),
		logger: log.New("component", "pricer"),
	}
}

// Quote prices gas for the given chain in the given token. The zero
// address means the native token and always succeeds (with a default gas
// price fallback). Any other token requires both USD feeds; a missing
// feed or bad oracle read is returned as an error for the caller to embed
// in its response envelope.
func (p *Pricer) Quote(ctx context.Context, chainID uint64, token common.Address) (*FeeQuote, error) {
	gasPrice, err := p.client.GasPrice(ctx, chainID)
	if err != nil {
		p.logger.Warn("gas price read failed, using default", "chain", chainID, "err", err)
		gasPrice = defaultGasPriceWei
	}
	feeCollector, _ := p.cfg.FeeCollector()
	quote := &FeeQuote{
		GasPrice:     hexutil.EncodeBig(gasPrice),
		FeeCollector: feeCollector,
		Expiry:       time.Now().Add(quoteValidity).Unix(),
		Token:        TokenInfo{Address: token, Decimals: 18},
	}

	// Native: gas price in wei scaled to whole tokens.
	gasPriceTokens := new(big.Float).Quo(new(big.Float).SetInt(gasPrice), big.NewFloat(1e18))
	if token == (common.Address{}) {
		quote.Rate = formatRate(gasPriceTokens)
		return quote, nil
	}

	nativeFeed, ok := p.cfg.ChainlinkNativeUSD(chainID)
	if !ok {
		return nil, fmt.Errorf("no native/USD feed configured for chain %d", chainID)
	}
	tokenFeed, ok := p.cfg.ChainlinkTokenUSD(chainID, token)
	if !ok {
		return nil, fmt.Errorf("no %s/USD feed configured for chain %d", token.Hex(), chainID)
	}
	nativeUSD, err := p.readFeed(ctx, chainID, nativeFeed)
	if err != nil {
		return nil, fmt.Errorf("native/USD feed: %w", err)
	}
	tokenUSD, err := p.readFeed(ctx, chainID, tokenFeed)
	if err != nil {
		return nil, fmt.Errorf("token/USD feed: %w", err)
	}

	// rate = (gasPrice / 1e18) * (nativeUSD / tokenUSD)
	rate := new(big.Float).Mul(gasPriceTokens, new(big.Float).Quo(nativeUSD, tokenUSD))
	quote.Rate = formatRate(rate)
	quote.Token.Decimals = p.tokenDecimals(ctx, chainID, token)
	return quote, nil
}

// readFeed answers one aggregator as answer/10^decimals.
func (p *Pricer) readFeed(ctx context.Context, chainID uint64, feed common.Address) (*big.Float, error) {
	key := feedKey{chainID: chainID, feed: feed}
	if r, ok := p.cache.Get(key); ok && time.Since(r.fetched) < feedCacheTTL {
		return scaleAnswer(r.answer, r.decimals), nil
	}
	decimals, err := p.callDecimals(ctx, chainID, feed)
	if err != nil {
		return nil, err
	}
	answer, err := p.callLatestAnswer(ctx, chainID, feed)
	if err != nil {
		return nil, err
	}
	if answer.Sign() <= 0 {
		return nil, fmt.Errorf("aggregator %s answered %s", feed.Hex(), answer)
	}
	p.cache.Add(key, feedReading{answer: answer, decimals: decimals, fetched: time.Now()})
	return scaleAnswer(answer, decimals), nil
}

func scaleAnswer(answer *big.Int, decimals uint8) *big.Float {
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	return new(big.Float).Quo(new(big.Float).SetInt(answer), scale)
}

// callDecimals reads decimals(): the last byte of the 32-byte word.
func (p *Pricer) callDecimals(ctx context.Context, chainID uint64, target common.Address) (uint8, error) {
	out, err := p.client.Call(ctx, chainID, ethereum.CallMsg{To: &target, Data: selectorDecimals})
	if err != nil {
		return 0, fmt.Errorf("decimals() on %s: %w", target.Hex(), err)
	}
	if len(out) < 32 {
		return 0, fmt.Errorf("decimals() on %s returned %d bytes", target.Hex(), len(out))
	}
	return out[31], nil
}

// callLatestAnswer reads latestAnswer(): the low 16 bytes of the 32-byte
// word as a signed 128-bit big-endian integer.
func (p *Pricer) callLatestAnswer(ctx context.Context, chainID uint64, feed common.Address) (*big.Int, error) {
	out, err := p.client.Call(ctx, chainID, ethereum.CallMsg{To: &feed, Data: selectorLatestAnswer})
	if err != nil {
		return nil, fmt.Errorf("latestAnswer() on %s: %w", feed.Hex(), err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("latestAnswer() on %s returned %d bytes", feed.Hex(), len(out))
	}
	answer := new(big.Int).SetBytes(out[16:32])
	if answer.Bit(127) == 1 {
		answer.Sub(answer, new(big.Int).Lsh(big.NewInt(1), 128))
	}
	return answer, nil
}

// tokenDecimals reads the display decimals from the token contract
// itself, defaulting to 18.
func (p *Pricer) tokenDecimals(ctx context.Context, chainID uint64, token common.Address) uint8 {
	d, err := p.callDecimals(ctx, chainID, token)
	if err != nil {
		p.logger.Debug("token decimals read failed, defaulting to 18", "token", token, "err", err)
		return 18
	}
	return d
}

func formatRate(f *big.Float) string {
	return f.Text('f', 18)
}
