package relayer

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/etherspot/relayx/chain"
)

func TestBroadcastSignsLegacyTx(t *testing.T) {
	client := newStubClient()
	key := testKey(t)
	sub := NewSubmitter(client, key, false)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), sub.From())

	gasPrice := big.NewInt(30_000_000_000)
	hash, nonce, err := sub.Broadcast(context.Background(), walletAddr, relayerCalld, 1, 90_000, gasPrice)
	require.NoError(t, err)
	require.Equal(t, uint64(7), nonce)
	require.Len(t, client.sent, 1)

	tx := client.sent[0]
	require.Equal(t, hash, tx.Hash())
	require.Equal(t, uint8(gethtypes.LegacyTxType), tx.Type())
	require.Equal(t, uint64(7), tx.Nonce())
	require.Equal(t, &walletAddr, tx.To())
	require.Zero(t, tx.Value().Sign())
	require.Equal(t, uint64(90_000), tx.Gas())
	require.Equal(t, gasPrice, tx.GasPrice())
	require.Equal(t, []byte(relayerCalld), tx.Data())
	require.Equal(t, []uint64{1}, client.sentChains)

	signer := gethtypes.LatestSignerForChainID(big.NewInt(1))
	from, err := gethtypes.Sender(signer, tx)
	require.NoError(t, err)
	require.Equal(t, sub.From(), from)
}

func TestBroadcastNonceFailure(t *testing.T) {
	client := newStubClient()
	client.nonceErr = &chain.Error{Kind: chain.KindTransport, Message: "nonce read failed"}
	sub := NewSubmitter(client, testKey(t), false)

	_, _, err := sub.Broadcast(context.Background(), walletAddr, relayerCalld, 1, 90_000, big.NewInt(1))
	require.Error(t, err)
	require.Empty(t, client.sent)
}

func TestBroadcastSendFailure(t *testing.T) {
	client := newStubClient()
	client.sendFn = func(chainID uint64, tx *gethtypes.Transaction) error {
		return &chain.Error{Kind: chain.KindTransport, Message: "underpriced"}
	}
	sub := NewSubmitter(client, testKey(t), false)

	_, _, err := sub.Broadcast(context.Background(), walletAddr, relayerCalld, 1, 90_000, big.NewInt(1))
	require.Error(t, err)
}

func TestBroadcastStubMode(t *testing.T) {
	client := newStubClient()
	sub := NewSubmitter(client, nil, true)

	hash, nonce, err := sub.Broadcast(context.Background(), walletAddr, relayerCalld, 1, 90_000, big.NewInt(1))
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, hash)
	require.Zero(t, nonce)
	require.Empty(t, client.sent, "stub mode must not touch the chain")

	other, _, err := sub.Broadcast(context.Background(), walletAddr, relayerCalld, 137, 90_000, big.NewInt(1))
	require.NoError(t, err)
	require.NotEqual(t, hash, other)
}
