package relayer

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/etherspot/relayx/chain"
	"github.com/etherspot/relayx/storage"
	"github.com/etherspot/relayx/types"
)

var (
	resubmissionCounter = metrics.NewRegisteredCounter("relayx/monitor/resubmissions", nil)
	completedCounter    = metrics.NewRegisteredCounter("relayx/monitor/completed", nil)
	revertedCounter     = metrics.NewRegisteredCounter("relayx/monitor/reverted", nil)
)

const (
	monitorInterval = 10 * time.Second
	monitorBatch    = 1000
)

// Monitor is the background receipt poller. Every tick it snapshots the
// request set, resolves mined transactions to their terminal state and
// rebroadcasts stalled ones with a bumped gas price. It never surfaces
// errors to clients; it only updates records.
type Monitor struct {
	store     *storage.Store
	client    chain.Client
	submitter *Submitter
	logger    log.Logger
	interval  time.Duration
	batch     int
}

func NewMonitor(store *storage.Store, client chain.Client, submitter *Submitter) *Monitor {
	return &Monitor{
		store:     store,
		client:    client,
		submitter: submitter,
		logger:    log.New("component", "monitor"),
		interval:  monitorInterval,
		batch:     monitorBatch,
	}
}

// Run loops until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("receipt monitor started", "interval", m.interval)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("receipt monitor stopped")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick is one full monitor pass. Each in-flight record is processed to
// completion before the next, keeping the single-writer-per-id contract
// with the intake path.
func (m *Monitor) tick(ctx context.Context) {
	records, err := m.store.ScanRequests(m.batch)
	if err != nil {
		m.logger.Error("request scan failed", "err", err)
		return
	}
	for _, r := range records {
		if r.Status != types.StatusPending && r.Status != types.StatusProcessing {
			continue
		}
		if r.TxHash == nil {
			// Intake will progress or fail it; a stale Pending record
			// here is an operational alarm, not a recovery path.
			continue
		}
		m.process(ctx, r)
	}
}

func (m *Monitor) process(ctx context.Context, r *types.Request) {
	receipt, err := m.client.Receipt(ctx, r.ChainID, *r.TxHash)
	if err != nil {
		m.logger.Warn("receipt fetch failed", "id", r.ID, "hash", *r.TxHash, "err", err)
		return
	}
	if receipt != nil {
		if receipt.Status == gethtypes.ReceiptStatusSuccessful {
			completedCounter.Inc(1)
			m.logger.Info("request completed", "id", r.ID, "hash", *r.TxHash, "block", receipt.BlockNumber)
			m.mutateStatus(r.ID, types.StatusCompleted, "")
		} else {
			revertedCounter.Inc(1)
			m.logger.Info("request reverted on chain", "id", r.ID, "hash", *r.TxHash)
			m.mutateStatus(r.ID, types.StatusFailed, "onchain revert")
		}
		return
	}
	m.resubmit(ctx, r)
}

// resubmit rebroadcasts a not-yet-mined request with a bumped price.
// The bump is taken relative to the stored broadcast price, so the price
// per request never decreases even when the live gas price falls; a
// lower replacement would be rejected as underpriced anyway.
func (m *Monitor) resubmit(ctx context.Context, r *types.Request) {
	stored, err := hexutil.DecodeBig(r.GasPrice)
	if err != nil {
		m.logger.Error("stored gas price undecodable", "id", r.ID, "gasPrice", r.GasPrice, "err", err)
		return
	}
	live, err := m.client.GasPrice(ctx, r.ChainID)
	if err != nil {
		m.logger.Warn("gas price read failed during resubmission", "id", r.ID, "err", err)
		live = new(big.Int).Set(stored)
	}
	bumped := bumpGasPrice(stored, live)

	txHash, nonce, err := m.submitter.Broadcast(ctx, r.To, r.Data, r.ChainID, r.GasLimit, bumped)
	if err != nil {
		m.logger.Error("resubmission broadcast failed", "id", r.ID, "err", err)
		m.mutateStatus(r.ID, types.StatusFailed, err.Error())
		return
	}
	resubmissionCounter.Inc(1)
	m.logger.Info("request resubmitted", "id", r.ID, "hash", txHash, "gasPrice", bumped)
	if err := m.store.MutateTxHash(r.ID, txHash, hexutil.EncodeBig(bumped)); err != nil {
		m.logger.Error("tx hash mutation failed", "id", r.ID, "err", err)
	}
	if err := m.store.MutateNonce(r.ID, nonce); err != nil {
		m.logger.Error("nonce mutation failed", "id", r.ID, "err", err)
	}
	if err := m.store.AppendResubmission(r.ID, types.Resubmission{
		TxHash:     txHash,
		ChainID:    r.ChainID,
		StatusCode: types.StatusProcessing.HTTPCode(),
	}); err != nil {
		m.logger.Error("resubmission append failed", "id", r.ID, "err", err)
	}
	m.mutateStatus(r.ID, types.StatusProcessing, "")
}

func (m *Monitor) mutateStatus(id string, status types.Status, errMsg string) {
	if err := m.store.MutateStatus(id, status, errMsg); err != nil {
		m.logger.Error("status mutation failed", "id", id, "status", status, "err", err)
	}
}

// bumpGasPrice returns max(live, ceil(stored * 1.20)).
func bumpGasPrice(stored, live *big.Int) *big.Int {
	bumped := new(big.Int).Mul(stored, big.NewInt(120))
	bumped.Add(bumped, big.NewInt(99))
	bumped.Div(bumped, big.NewInt(100))
	if live.Cmp(bumped) > 0 {
		return new(big.Int).Set(live)
	}
	return bumped
}
