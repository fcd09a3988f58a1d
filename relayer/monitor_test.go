package relayer

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/etherspot/relayx/chain"
	"github.com/etherspot/relayx/storage"
	"github.com/etherspot/relayx/types"
)

func newTestMonitor(t *testing.T, client *stubClient) (*Monitor, *storage.Store) {
	t.Helper()
	store := storage.NewMemory()
	t.Cleanup(func() { store.Close() })
	return NewMonitor(store, client, NewSubmitter(client, testKey(t), false)), store
}

func seedInFlight(t *testing.T, store *storage.Store, status types.Status, gasPrice string, txHash *common.Hash) *types.Request {
	t.Helper()
	now := time.Now().UTC()
	r := &types.Request{
		ID:        uuid.NewString(),
		ChainID:   1,
		To:        walletAddr,
		Data:      relayerCalld,
		Payment:   types.Payment{Type: types.PaymentNative},
		GasLimit:  90_000,
		GasPrice:  gasPrice,
		TxHash:    txHash,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.PutRequest(r))
	return r
}

func TestMonitorResubmitsStalled(t *testing.T) {
	client := newStubClient()
	client.gasPrice = big.NewInt(0x1000) // live price equals the stored one
	mon, store := newTestMonitor(t, client)

	oldHash := common.HexToHash("0xaaaa")
	r := seedInFlight(t, store, types.StatusProcessing, "0x1000", &oldHash)

	mon.tick(context.Background())

	record, err := store.GetRequest(r.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusProcessing, record.Status)
	require.Len(t, client.sent, 1)
	require.Equal(t, client.sent[0].Hash(), *record.TxHash)
	require.NotEqual(t, oldHash, *record.TxHash)

	// ceil(0x1000 * 1.20) = 4916
	require.Equal(t, "0x1334", record.GasPrice)
	require.Equal(t, big.NewInt(4916), client.sent[0].GasPrice())
	require.Equal(t, r.GasLimit, client.sent[0].Gas())
	require.Equal(t, []byte(r.Data), client.sent[0].Data())

	events, err := store.ListResubmissions(r.ID)
	require.NoError(t, err)
	require.Equal(t, []types.Resubmission{{
		TxHash:     client.sent[0].Hash(),
		ChainID:    1,
		StatusCode: 201,
	}}, events)
}

func TestMonitorResolvesSuccess(t *testing.T) {
	client := newStubClient()
	client.receiptFn = func(chainID uint64, txHash common.Hash) (*gethtypes.Receipt, error) {
		return &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100)}, nil
	}
	mon, store := newTestMonitor(t, client)

	hash := common.HexToHash("0xaaaa")
	r := seedInFlight(t, store, types.StatusProcessing, "0x1000", &hash)

	mon.tick(context.Background())

	record, err := store.GetRequest(r.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, record.Status)
	require.Empty(t, client.sent)
}

func TestMonitorResolvesRevert(t *testing.T) {
	client := newStubClient()
	client.receiptFn = func(chainID uint64, txHash common.Hash) (*gethtypes.Receipt, error) {
		return &gethtypes.Receipt{Status: gethtypes.ReceiptStatusFailed, BlockNumber: big.NewInt(100)}, nil
	}
	mon, store := newTestMonitor(t, client)

	hash := common.HexToHash("0xaaaa")
	r := seedInFlight(t, store, types.StatusProcessing, "0x1000", &hash)

	mon.tick(context.Background())

	record, err := store.GetRequest(r.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, record.Status)
	require.Equal(t, "onchain revert", record.ErrorMessage)

	failed, err := store.CountByStatus(types.StatusFailed)
	require.NoError(t, err)
	require.Equal(t, uint64(1), failed)
}

func TestMonitorSkipsTerminalAndUnbroadcast(t *testing.T) {
	client := newStubClient()
	mon, store := newTestMonitor(t, client)

	hash := common.HexToHash("0xaaaa")
	seedInFlight(t, store, types.StatusCompleted, "0x1000", &hash)
	seedInFlight(t, store, types.StatusFailed, "0x1000", &hash)
	pending := seedInFlight(t, store, types.StatusPending, "0x1000", nil)

	mon.tick(context.Background())

	require.Zero(t, client.receiptCalls)
	require.Empty(t, client.sent)
	record, err := store.GetRequest(pending.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusPending, record.Status)
}

func TestMonitorBroadcastFailureMarksFailed(t *testing.T) {
	client := newStubClient()
	client.sendFn = func(chainID uint64, tx *gethtypes.Transaction) error {
		return &chain.Error{Kind: chain.KindTransport, Message: "endpoint down"}
	}
	mon, store := newTestMonitor(t, client)

	hash := common.HexToHash("0xaaaa")
	r := seedInFlight(t, store, types.StatusProcessing, "0x1000", &hash)

	mon.tick(context.Background())

	record, err := store.GetRequest(r.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, record.Status)
	require.NotEmpty(t, record.ErrorMessage)
}

func TestMonitorUsesLiveGasPriceWhenHigher(t *testing.T) {
	client := newStubClient()
	client.gasPrice = big.NewInt(10_000) // above ceil(4096 * 1.20)
	mon, store := newTestMonitor(t, client)

	hash := common.HexToHash("0xaaaa")
	r := seedInFlight(t, store, types.StatusProcessing, "0x1000", &hash)

	mon.tick(context.Background())

	record, err := store.GetRequest(r.ID)
	require.NoError(t, err)
	require.Equal(t, hexutil.EncodeBig(big.NewInt(10_000)), record.GasPrice)
}

func TestBumpGasPrice(t *testing.T) {
	cases := []struct {
		stored, live, want int64
	}{
		{4096, 4096, 4916},   // ceil(4096 * 1.20) = 4915.2 -> 4916
		{4096, 10000, 10000}, // live wins when higher than the bump
		{100, 50, 120},       // falling live price never lowers the bid
		{5, 1, 6},            // exact multiple stays exact
		{7, 1, 9},            // ceil(8.4) = 9
	}
	for _, c := range cases {
		got := bumpGasPrice(big.NewInt(c.stored), big.NewInt(c.live))
		require.Equal(t, big.NewInt(c.want), got, "stored=%d live=%d", c.stored, c.live)
	}
}
