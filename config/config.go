// Package config loads and merges the relayer configuration from a JSON
// file, the environment and CLI flags (flags win over env, env over file),
// and answers pure lookups over the frozen result.
package config

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Environment variable names. CLI flags override these, these override
// the file.
const (
	EnvConfig       = "RELAYX_CONFIG"
	EnvPrivateKey   = "RELAYX_PRIVATE_KEY"
	EnvFeeCollector = "RELAYX_FEE_COLLECTOR"
	EnvDefaultToken = "RELAYX_DEFAULT_TOKEN"
	EnvStubMode     = "RELAYX_STUB_MODE"
	EnvEtherscanKey = "ETHERSCAN_API_KEY"
	EnvHTTPAddress  = "HTTP_ADDRESS"
	EnvHTTPPort     = "HTTP_PORT"
	EnvHTTPCors     = "HTTP_CORS"
	EnvLogLevel     = "LOG_LEVEL"
)

// chainlinkFile is the feed section of the config file.
type chainlinkFile struct {
	NativeUSD map[string]string            `json:"nativeUsd"`
	TokenUSD  map[string]map[string]string `json:"tokenUsd"`
}

// fileConfig is the on-disk shape. RPC endpoints are accepted either
// nested under "rpcs" or as flat top-level "<chain-id>": "<url>" pairs.
type fileConfig struct {
	RPCs              map[string]string `json:"rpcs"`
	Chainlink         chainlinkFile     `json:"chainlink"`
	FeeCollector      string            `json:"feeCollector"`
	DefaultToken      string            `json:"defaultToken"`
	PrivateKey        string            `json:"privateKey"`
	DBPath            string            `json:"dbPath"`
	HTTPAddress       string            `json:"httpAddress"`
	HTTPPort          int               `json:"httpPort"`
	HTTPCors          string            `json:"httpCors"`
	LogLevel          string            `json:"logLevel"`
	DisableSimulation bool              `json:"disableSimulation"`
	StubMode          bool              `json:"stubMode"`
	EtherscanAPIKey   string            `json:"etherscanApiKey"`
	RequestTimeout    int               `json:"requestTimeout"` // seconds, per chain call
}

// Overrides carries CLI flag values. Zero values mean "not set".
type Overrides struct {
	ConfigPath        string
	PrivateKey        string
	FeeCollector      string
	DefaultToken      string
	DBPath            string
	HTTPAddress       string
	HTTPPort          int
	HTTPCors          string
	LogLevel          string
	DisableSimulation bool
	StubMode          bool
}

// Config is the frozen merged tree. It is built once at process init and
// never mutated afterwards; all lookup methods are pure reads.
type Config struct {
	rpcs         map[uint64]string
	nativeUSD    map[uint64]common.Address
	tokenUSD     map[uint64]map[common.Address]common.Address
	feeCollector *common.Address
	defaultToken *common.Address
	privateKey   string

	dbPath            string
	httpAddress       string
	httpPort          int
	httpCors          string
	logLevel          string
	disableSimulation bool
	stubMode          bool
	etherscanAPIKey   string
	requestTimeout    time.Duration
}

// Load reads the config file named by ov.ConfigPath (falling back to
// RELAYX_CONFIG, then to no file at all), applies environment and flag
// overrides and freezes the result.
func Load(ov Overrides) (*Config, error) {
	var fc fileConfig
	path := ov.ConfigPath
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		return Parse(raw, ov)
	}
	applyEnv(&fc)
	applyOverrides(&fc, ov)
	return freeze(&fc)
}

// Parse builds a Config from raw file bytes plus env and flag overrides.
func Parse(raw []byte, ov Overrides) (*Config, error) {
	var fc fileConfig
	if err := parseFile(raw, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&fc)
	applyOverrides(&fc, ov)
	return freeze(&fc)
}

// parseFile decodes the file, accepting both the nested {"rpcs":{...}}
// shape and flat {"<chain-id>":"<url>"} top-level pairs.
func parseFile(raw []byte, fc *fileConfig) error {
	if err := json.Unmarshal(raw, fc); err != nil {
		return err
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return err
	}
	for key, val := range top {
		if _, err := strconv.ParseUint(key, 10, 64); err != nil {
			continue
		}
		var url string
		if err := json.Unmarshal(val, &url); err != nil {
			continue
		}
		if fc.RPCs == nil {
			fc.RPCs = make(map[string]string)
		}
		if _, ok := fc.RPCs[key]; !ok {
			fc.RPCs[key] = url
		}
	}
	return nil
}

func applyEnv(fc *fileConfig) {
	if v := os.Getenv(EnvPrivateKey); v != "" {
		fc.PrivateKey = v
	}
	if v := os.Getenv(EnvFeeCollector); v != "" {
		fc.FeeCollector = v
	}
	if v := os.Getenv(EnvDefaultToken); v != "" {
		fc.DefaultToken = v
	}
	if v := os.Getenv(EnvStubMode); v != "" {
		fc.StubMode = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv(EnvEtherscanKey); v != "" {
		fc.EtherscanAPIKey = v
	}
	if v := os.Getenv(EnvHTTPAddress); v != "" {
		fc.HTTPAddress = v
	}
	if v := os.Getenv(EnvHTTPPort); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			fc.HTTPPort = p
		}
	}
	if v := os.Getenv(EnvHTTPCors); v != "" {
		fc.HTTPCors = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		fc.LogLevel = v
	}
}

func applyOverrides(fc *fileConfig, ov Overrides) {
	if ov.PrivateKey != "" {
		fc.PrivateKey = ov.PrivateKey
	}
	if ov.FeeCollector != "" {
		fc.FeeCollector = ov.FeeCollector
	}
	if ov.DefaultToken != "" {
		fc.DefaultToken = ov.DefaultToken
	}
	if ov.DBPath != "" {
		fc.DBPath = ov.DBPath
	}
	if ov.HTTPAddress != "" {
		fc.HTTPAddress = ov.HTTPAddress
	}
	if ov.HTTPPort != 0 {
		fc.HTTPPort = ov.HTTPPort
	}
	if ov.HTTPCors != "" {
		fc.HTTPCors = ov.HTTPCors
	}
	if ov.LogLevel != "" {
		fc.LogLevel = ov.LogLevel
	}
	if ov.DisableSimulation {
		fc.DisableSimulation = true
	}
	if ov.StubMode {
		fc.StubMode = true
	}
}

func freeze(fc *fileConfig) (*Config, error) {
	cfg := &Config{
		rpcs:              make(map[uint64]string),
		nativeUSD:         make(map[uint64]common.Address),
		tokenUSD:          make(map[uint64]map[common.Address]common.Address),
		privateKey:        fc.PrivateKey,
		dbPath:            fc.DBPath,
		httpAddress:       fc.HTTPAddress,
		httpPort:          fc.HTTPPort,
		httpCors:          fc.HTTPCors,
		logLevel:          fc.LogLevel,
		disableSimulation: fc.DisableSimulation,
		stubMode:          fc.StubMode,
		etherscanAPIKey:   fc.EtherscanAPIKey,
		requestTimeout:    30 * time.Second,
	}
	if fc.RequestTimeout > 0 {
		cfg.requestTimeout = time.Duration(fc.RequestTimeout) * time.Second
	}
	if cfg.dbPath == "" {
		cfg.dbPath = "./relayx_db"
	}
	if cfg.httpAddress == "" {
		cfg.httpAddress = "127.0.0.1"
	}
	if cfg.httpPort == 0 {
		cfg.httpPort = 8545
	}
	for id, url := range fc.RPCs {
		chainID, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q in rpcs", id)
		}
		cfg.rpcs[chainID] = url
	}
	for id, feed := range fc.Chainlink.NativeUSD {
		chainID, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q in chainlink.nativeUsd", id)
		}
		if !common.IsHexAddress(feed) {
			return nil, fmt.Errorf("invalid feed address %q for chain %s", feed, id)
		}
		cfg.nativeUSD[chainID] = common.HexToAddress(feed)
	}
	for id, feeds := range fc.Chainlink.TokenUSD {
		chainID, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q in chainlink.tokenUsd", id)
		}
		m := make(map[common.Address]common.Address, len(feeds))
		for token, feed := range feeds {
			if !common.IsHexAddress(token) || !common.IsHexAddress(feed) {
				return nil, fmt.Errorf("invalid token feed pair %q=%q for chain %s", token, feed, id)
			}
			m[common.HexToAddress(token)] = common.HexToAddress(feed)
		}
		cfg.tokenUSD[chainID] = m
	}
	if fc.FeeCollector != "" {
		if !common.IsHexAddress(fc.FeeCollector) {
			return nil, fmt.Errorf("invalid fee collector %q", fc.FeeCollector)
		}
		addr := common.HexToAddress(fc.FeeCollector)
		cfg.feeCollector = &addr
	}
	if fc.DefaultToken != "" {
		if !common.IsHexAddress(fc.DefaultToken) {
			return nil, fmt.Errorf("invalid default token %q", fc.DefaultToken)
		}
		addr := common.HexToAddress(fc.DefaultToken)
		cfg.defaultToken = &addr
	}
	return cfg, nil
}

// RPCURL answers the JSON-RPC endpoint for a chain.
func (c *Config) RPCURL(chainID uint64) (string, bool) {
	url, ok := c.rpcs[chainID]
	return url, ok
}

// IsChainSupported is true iff an RPC endpoint is configured.
func (c *Config) IsChainSupported(chainID uint64) bool {
	_, ok := c.rpcs[chainID]
	return ok
}

// ChainIDs returns the configured chains in ascending order.
func (c *Config) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(c.rpcs))
	for id := range c.rpcs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ChainlinkNativeUSD answers the native/USD aggregator for a chain.
func (c *Config) ChainlinkNativeUSD(chainID uint64) (common.Address, bool) {
	feed, ok := c.nativeUSD[chainID]
	return feed, ok
}

// ChainlinkTokenUSD answers the token/USD aggregator for a (chain, token)
// pair. Token comparison is case-insensitive: addresses are canonicalised
// at load time.
func (c *Config) ChainlinkTokenUSD(chainID uint64, token common.Address) (common.Address, bool) {
	feeds, ok := c.tokenUSD[chainID]
	if !ok {
		return common.Address{}, false
	}
	feed, ok := feeds[token]
	return feed, ok
}

// SupportedTokens is the union of all token keys under chainlink.tokenUsd,
// deduplicated, in deterministic order.
func (c *Config) SupportedTokens() []common.Address {
	seen := make(map[common.Address]struct{})
	for _, feeds := range c.tokenUSD {
		for token := range feeds {
			seen[token] = struct{}{}
		}
	}
	tokens := make([]common.Address, 0, len(seen))
	for token := range seen {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].Hex() < tokens[j].Hex()
	})
	return tokens
}

// IsTokenSupported reports whether token is in the supported set.
func (c *Config) IsTokenSupported(token common.Address) bool {
	for _, feeds := range c.tokenUSD {
		if _, ok := feeds[token]; ok {
			return true
		}
	}
	return false
}

// FeeCollector answers the configured fee collector, if any.
func (c *Config) FeeCollector() (common.Address, bool) {
	if c.feeCollector == nil {
		return common.Address{}, false
	}
	return *c.feeCollector, true
}

// DefaultToken answers the configured default payment token, if any.
func (c *Config) DefaultToken() (common.Address, bool) {
	if c.defaultToken == nil {
		return common.Address{}, false
	}
	return *c.defaultToken, true
}

// SignerKey parses the configured relayer private key.
func (c *Config) SignerKey() (*ecdsa.PrivateKey, error) {
	if c.privateKey == "" {
		return nil, fmt.Errorf("no signer key configured")
	}
	return crypto.HexToECDSA(strings.TrimPrefix(c.privateKey, "0x"))
}

// HasSignerKey reports whether a signer key is configured at all.
func (c *Config) HasSignerKey() bool { return c.privateKey != "" }

func (c *Config) DBPath() string                { return c.dbPath }
func (c *Config) HTTPAddress() string           { return c.httpAddress }
func (c *Config) HTTPPort() int                 { return c.httpPort }
func (c *Config) LogLevel() string              { return c.logLevel }
func (c *Config) DisableSimulation() bool       { return c.disableSimulation }
func (c *Config) StubMode() bool                { return c.stubMode }
func (c *Config) EtherscanAPIKey() string       { return c.etherscanAPIKey }
func (c *Config) RequestTimeout() time.Duration { return c.requestTimeout }

// CORSOrigins splits the configured CORS policy into origins. Empty
// config means no cross-origin access; "*" allows all.
func (c *Config) CORSOrigins() []string {
	if c.httpCors == "" {
		return nil
	}
	parts := strings.Split(c.httpCors, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
