package relayer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"

	"github.com/etherspot/relayx/chain"
)

// executeWithRelayerSelector is the only wallet entry point the relayer
// will target. Calldata with any other selector is rejected outright.
var executeWithRelayerSelector = []byte{0xc3, 0xa4, 0xe9, 0xca}

// defaultSimulationGas is returned when simulation is disabled. Smoke
// tests against chains with stale state rely on this.
const defaultSimulationGas = 150_000

// Simulator dry-runs a submission before the relayer commits funds to it.
// Reject-on-revert: any revert or estimation failure rejects the request.
type Simulator struct {
	client   chain.Client
	disabled bool
	logger   log.Logger
}

func NewSimulator(client chain.Client, disabled bool) *Simulator {
	return &Simulator{
		client:   client,
		disabled: disabled,
		logger:   log.New("component", "simulator"),
	}
}

// Simulate validates the calldata shape, dry-calls the wallet and returns
// the estimated gas ceiling. With simulation disabled it returns the
// fixed default without contacting the chain.
func (s *Simulator) Simulate(ctx context.Context, to common.Address, data []byte, chainID uint64) (uint64, error) {
	if s.disabled {
		return defaultSimulationGas, nil
	}
	if len(data) < 4 {
		return 0, errSimulationFailed("calldata shorter than a function selector", nil)
	}
	if !bytes.Equal(data[:4], executeWithRelayerSelector) {
		return 0, errSimulationFailed(
			fmt.Sprintf("calldata does not target executeWithRelayer (selector %s)", hexutil.Encode(data[:4])), nil)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	if _, err := s.client.Call(ctx, chainID, msg); err != nil {
		s.logger.Debug("dry call rejected", "to", to, "chain", chainID, "err", err)
		if ce, ok := err.(*chain.Error); ok && ce.Kind == chain.KindReverted {
			return 0, errSimulationFailed("execution reverted: "+ce.Message, hexutil.Encode(ce.RevertData))
		}
		return 0, errSimulationFailed("simulation call failed: "+err.Error(), nil)
	}
	gas, err := s.client.EstimateGas(ctx, chainID, msg)
	if err != nil {
		s.logger.Debug("gas estimation rejected", "to", to, "chain", chainID, "err", err)
		return 0, errSimulationFailed("gas estimation failed: "+err.Error(), nil)
	}
	return gas, nil
}
