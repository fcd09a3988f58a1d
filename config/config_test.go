package config

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const nestedConfig = `{
	"rpcs": {"1": "https://mainnet.example", "137": "https://polygon.example"},
	"chainlink": {
		"nativeUsd": {"1": "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"},
		"tokenUsd": {
			"1": {"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48": "0x8fFfFfd4AfB6115b954Bd326cbe7B4BA576818f6"},
			"137": {"0xa0B86991C6218B36C1D19D4A2E9eb0ce3606eb48": "0x0000000000000000000000000000000000000111"}
		}
	},
	"feeCollector": "0x0000000000000000000000000000000000000f0f",
	"privateKey": "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291",
	"httpPort": 9000
}`

func TestParseNestedRPCs(t *testing.T) {
	cfg, err := Parse([]byte(nestedConfig), Overrides{})
	require.NoError(t, err)

	url, ok := cfg.RPCURL(1)
	require.True(t, ok)
	require.Equal(t, "https://mainnet.example", url)
	require.True(t, cfg.IsChainSupported(137))
	require.False(t, cfg.IsChainSupported(10))
	require.Equal(t, []uint64{1, 137}, cfg.ChainIDs())
}

func TestParseFlatRPCs(t *testing.T) {
	cfg, err := Parse([]byte(`{"1": "https://mainnet.example", "56": "https://bsc.example"}`), Overrides{})
	require.NoError(t, err)

	url, ok := cfg.RPCURL(56)
	require.True(t, ok)
	require.Equal(t, "https://bsc.example", url)
	require.True(t, cfg.IsChainSupported(1))
}

func TestSupportedTokensUnion(t *testing.T) {
	cfg, err := Parse([]byte(nestedConfig), Overrides{})
	require.NoError(t, err)

	// The same token is configured on both chains with different casing;
	// the union has one entry.
	tokens := cfg.SupportedTokens()
	require.Len(t, tokens, 1)
	require.Equal(t, common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"), tokens[0])
}

func TestTokenLookupCaseInsensitive(t *testing.T) {
	cfg, err := Parse([]byte(nestedConfig), Overrides{})
	require.NoError(t, err)

	require.True(t, cfg.IsTokenSupported(common.HexToAddress("0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48")))
	require.True(t, cfg.IsTokenSupported(common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")))
	require.False(t, cfg.IsTokenSupported(common.HexToAddress("0xdef0000000000000000000000000000000000000")))

	feed, ok := cfg.ChainlinkTokenUSD(1, common.HexToAddress("0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48"))
	require.True(t, ok)
	require.Equal(t, common.HexToAddress("0x8fFfFfd4AfB6115b954Bd326cbe7B4BA576818f6"), feed)
}

func TestChainlinkNativeUSD(t *testing.T) {
	cfg, err := Parse([]byte(nestedConfig), Overrides{})
	require.NoError(t, err)

	feed, ok := cfg.ChainlinkNativeUSD(1)
	require.True(t, ok)
	require.Equal(t, common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"), feed)
	_, ok = cfg.ChainlinkNativeUSD(137)
	require.False(t, ok)
}

func TestSignerKey(t *testing.T) {
	cfg, err := Parse([]byte(nestedConfig), Overrides{})
	require.NoError(t, err)
	require.True(t, cfg.HasSignerKey())

	key, err := cfg.SignerKey()
	require.NoError(t, err)
	require.NotNil(t, key)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv(EnvFeeCollector, "0x0000000000000000000000000000000000000abc")
	t.Setenv(EnvHTTPPort, "9999")

	cfg, err := Parse([]byte(nestedConfig), Overrides{})
	require.NoError(t, err)

	collector, ok := cfg.FeeCollector()
	require.True(t, ok)
	require.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000000abc"), collector)
	require.Equal(t, 9999, cfg.HTTPPort())
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv(EnvHTTPPort, "9999")

	cfg, err := Parse([]byte(nestedConfig), Overrides{HTTPPort: 7777})
	require.NoError(t, err)
	require.Equal(t, 7777, cfg.HTTPPort())
}

func TestStubModeEnv(t *testing.T) {
	t.Setenv(EnvStubMode, "true")
	cfg, err := Parse([]byte(`{}`), Overrides{})
	require.NoError(t, err)
	require.True(t, cfg.StubMode())
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`{}`), Overrides{})
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.HTTPAddress())
	require.Equal(t, 8545, cfg.HTTPPort())
	require.Equal(t, "./relayx_db", cfg.DBPath())
	require.False(t, cfg.HasSignerKey())
	_, ok := cfg.FeeCollector()
	require.False(t, ok)
	_, ok = cfg.DefaultToken()
	require.False(t, ok)
}

func TestCORSOrigins(t *testing.T) {
	cfg, err := Parse([]byte(`{"httpCors": "https://a.example, https://b.example"}`), Overrides{})
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins())

	cfg, err = Parse([]byte(`{}`), Overrides{})
	require.NoError(t, err)
	require.Empty(t, cfg.CORSOrigins())
}
