package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"
)

const etherscanEndpoint = "https://api.etherscan.io/api?module=gastracker&action=gasoracle&apikey="

// EtherscanOracle reads the mainnet gas tracker. It only serves as a
// fallback when the RPC endpoint cannot answer eth_gasPrice.
type EtherscanOracle struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewEtherscanOracle(apiKey string) *EtherscanOracle {
	return &EtherscanOracle{
		apiKey:   apiKey,
		endpoint: etherscanEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type gasOracleResponse struct {
	Status string `json:"status"`
	Result struct {
		ProposeGasPrice string `json:"ProposeGasPrice"` // gwei, decimal
	} `json:"result"`
}

// GasPrice returns the proposed gas price in wei.
func (o *EtherscanOracle) GasPrice(ctx context.Context) (*big.Int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint+o.apiKey, nil)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: fmt.Sprintf("etherscan request: %v", err)}
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: fmt.Sprintf("etherscan gas oracle: %v", err)}
	}
	defer resp.Body.Close()
	var body gasOracleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &Error{Kind: KindDecode, Message: fmt.Sprintf("etherscan gas oracle: %v", err)}
	}
	if body.Status != "1" {
		return nil, &Error{Kind: KindDecode, Message: "etherscan gas oracle: bad status"}
	}
	gwei, ok := new(big.Float).SetString(body.Result.ProposeGasPrice)
	if !ok {
		return nil, &Error{Kind: KindDecode, Message: fmt.Sprintf("etherscan gas oracle: bad price %q", body.Result.ProposeGasPrice)}
	}
	wei, _ := new(big.Float).Mul(gwei, big.NewFloat(1e9)).Int(nil)
	return wei, nil
}
