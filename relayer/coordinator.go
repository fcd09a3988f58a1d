package relayer

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/google/uuid"

	"github.com/etherspot/relayx/chain"
	"github.com/etherspot/relayx/config"
	"github.com/etherspot/relayx/storage"
	"github.com/etherspot/relayx/types"
)

var (
	intakeAcceptedCounter = metrics.NewRegisteredCounter("relayx/intake/accepted", nil)
	intakeRejectedCounter = metrics.NewRegisteredCounter("relayx/intake/rejected", nil)
	broadcastCounter      = metrics.NewRegisteredCounter("relayx/broadcasts", nil)
)

// Submission is one validated-at-the-edge relay request. The coordinator
// owns all semantic validation beyond hex well-formedness.
type Submission struct {
	To                common.Address
	Data              []byte
	ChainID           uint64
	Payment           types.Payment
	AuthorizationList []byte
}

// SubmitResult identifies the persisted request of one submission row.
type SubmitResult struct {
	ChainID uint64
	ID      string
}

// Coordinator owns the request lifecycle: intake validation, simulation,
// persistence, broadcast and the status query. The background receipt
// monitor lives in monitor.go.
type Coordinator struct {
	cfg       *config.Config
	client    chain.Client
	sim       *Simulator
	pricer    *Pricer
	submitter *Submitter
	store     *storage.Store
	logger    log.Logger
}

func NewCoordinator(cfg *config.Config, client chain.Client, sim *Simulator, pricer *Pricer, submitter *Submitter, store *storage.Store) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		client:    client,
		sim:       sim,
		pricer:    pricer,
		submitter: submitter,
		store:     store,
		logger:    log.New("component", "coordinator"),
	}
}

// Store exposes the backing store for the health endpoint.
func (c *Coordinator) Store() *storage.Store { return c.store }

// Submit runs the single-chain intake path: validate, simulate, persist
// Pending, broadcast, persist Processing. Validation failures persist
// nothing; failures after the Pending record mark it Failed and surface
// InternalError.
func (c *Coordinator) Submit(ctx context.Context, sub Submission) (*SubmitResult, error) {
	if !c.cfg.IsChainSupported(sub.ChainID) {
		intakeRejectedCounter.Inc(1)
		return nil, errInvalidParams("unsupported chain id %d", sub.ChainID)
	}
	auths, err := decodeAuthorizationList(sub.AuthorizationList)
	if err != nil {
		intakeRejectedCounter.Inc(1)
		return nil, err
	}
	if err := validateAuthorizations(auths, sub.ChainID, sub.To); err != nil {
		intakeRejectedCounter.Inc(1)
		return nil, err
	}
	return c.intake(ctx, sub)
}

// intake is the shared tail of the single-chain path and of each
// multichain row (which skips authorization validation). The chain check
// repeats here so a batch row addressed to an unconfigured chain is
// rejected before anything persists.
func (c *Coordinator) intake(ctx context.Context, sub Submission) (*SubmitResult, error) {
	if !c.cfg.IsChainSupported(sub.ChainID) {
		intakeRejectedCounter.Inc(1)
		return nil, errInvalidParams("unsupported chain id %d", sub.ChainID)
	}
	gasLimit, err := c.sim.Simulate(ctx, sub.To, sub.Data, sub.ChainID)
	if err != nil {
		intakeRejectedCounter.Inc(1)
		return nil, err
	}
	gasPrice, err := c.client.GasPrice(ctx, sub.ChainID)
	if err != nil {
		c.logger.Warn("gas price read failed at intake, using default", "chain", sub.ChainID, "err", err)
		gasPrice = defaultGasPriceWei
	}
	if err := c.validatePayment(ctx, sub, gasPrice, gasLimit); err != nil {
		intakeRejectedCounter.Inc(1)
		return nil, err
	}

	now := time.Now().UTC()
	record := &types.Request{
		ID:        uuid.NewString(),
		ChainID:   sub.ChainID,
		To:        sub.To,
		Data:      sub.Data,
		Payment:   sub.Payment,
		GasLimit:  gasLimit,
		GasPrice:  hexutil.EncodeBig(gasPrice),
		Status:    types.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.PutRequest(record); err != nil {
		intakeRejectedCounter.Inc(1)
		return nil, errInternal("persist request: %v", err)
	}

	txHash, nonce, err := c.submitter.Broadcast(ctx, sub.To, sub.Data, sub.ChainID, gasLimit, gasPrice)
	if err != nil {
		c.logger.Error("broadcast failed", "id", record.ID, "chain", sub.ChainID, "err", err)
		if serr := c.store.MutateStatus(record.ID, types.StatusFailed, err.Error()); serr != nil {
			c.logger.Error("failed to mark request failed", "id", record.ID, "err", serr)
		}
		return nil, errInternal("broadcast failed: %v", err)
	}
	broadcastCounter.Inc(1)
	if err := c.store.MutateTxHash(record.ID, txHash, record.GasPrice); err != nil {
		return nil, errInternal("persist tx hash: %v", err)
	}
	if err := c.store.MutateNonce(record.ID, nonce); err != nil {
		return nil, errInternal("persist nonce: %v", err)
	}
	if err := c.store.MutateStatus(record.ID, types.StatusProcessing, ""); err != nil {
		return nil, errInternal("persist status: %v", err)
	}
	intakeAcceptedCounter.Inc(1)
	c.logger.Info("request accepted", "id", record.ID, "chain", sub.ChainID, "hash", txHash, "gasLimit", gasLimit)
	return &SubmitResult{ChainID: sub.ChainID, ID: record.ID}, nil
}

// validatePayment enforces the payment variant rules of the intake path.
func (c *Coordinator) validatePayment(ctx context.Context, sub Submission, gasPrice *big.Int, gasLimit uint64) error {
	switch sub.Payment.Type {
	case types.PaymentNative:
		if sub.Payment.Token != (common.Address{}) {
			return errInvalidParams("native payment requires the zero token address")
		}
		cost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
		if cost.BitLen() > 256 {
			return errInternal("gas cost overflows 256 bits")
		}
		balance, err := c.client.Balance(ctx, sub.ChainID, sub.To)
		if err != nil {
			return errInternal("balance check failed: %v", err)
		}
		if balance.Cmp(cost) < 0 {
			return errInvalidParams("wallet balance %s below gas cost %s", balance, cost)
		}
	case types.PaymentERC20:
		if !c.cfg.IsTokenSupported(sub.Payment.Token) {
			return errUnsupportedToken("payment token %s is not supported", sub.Payment.Token.Hex())
		}
	case types.PaymentSponsored:
		// No token check; the relayer eats the cost.
	default:
		return errUnsupportedCapability("unknown payment type %q", sub.Payment.Type)
	}
	return nil
}

// SubmitMultichain runs the batch path: one shared payment capability,
// rows submitted sequentially and independently. A row whose broadcast
// fails is left Failed in the store and later rows still proceed; the
// response carries only {chainId, id} per row either way. Row-level
// validation failures abort the batch before anything persists for that
// row.
func (c *Coordinator) SubmitMultichain(ctx context.Context, txs []Submission, payment types.Payment, paymentChainID uint64) ([]SubmitResult, error) {
	if len(txs) == 0 {
		return nil, errInvalidParams("empty transaction batch")
	}
	if !c.cfg.IsChainSupported(paymentChainID) {
		return nil, errInvalidParams("unsupported payment chain id %d", paymentChainID)
	}
	if err := c.validateCapabilityShape(payment); err != nil {
		return nil, err
	}
	results := make([]SubmitResult, 0, len(txs))
	for i := range txs {
		sub := txs[i]
		sub.Payment = payment
		res, err := c.intake(ctx, sub)
		if err != nil {
			var terr *Error
			if errors.As(err, &terr) && terr.ErrorCode() == CodeInternalError {
				// Broadcast (or persistence) failure: the row is already
				// recorded Failed where possible, the batch continues.
				c.logger.Warn("multichain row failed", "row", i, "chain", sub.ChainID, "err", err)
				continue
			}
			return nil, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// validateCapabilityShape checks the batch payment capability without the
// per-row balance check (that happens per chain during intake).
func (c *Coordinator) validateCapabilityShape(payment types.Payment) error {
	switch payment.Type {
	case types.PaymentNative:
		if payment.Token != (common.Address{}) {
			return errInvalidParams("native payment requires the zero token address")
		}
	case types.PaymentERC20:
		if !c.cfg.IsTokenSupported(payment.Token) {
			return errUnsupportedToken("payment token %s is not supported", payment.Token.Hex())
		}
	case types.PaymentSponsored:
	default:
		return errUnsupportedCapability("unknown payment type %q", payment.Type)
	}
	return nil
}

// StatusRow is one response row of the status query.
type StatusRow struct {
	Version         string            `json:"version"`
	ID              string            `json:"id"`
	Status          int               `json:"status"`
	Receipts        []interface{}     `json:"receipts"`
	Resubmissions   []ResubmissionRow `json:"resubmissions"`
	OffchainFailure []string          `json:"offchainFailure"`
	OnchainFailure  []string          `json:"onchainFailure"`
}

// ResubmissionRow is the wire form of a stored resubmission event.
type ResubmissionRow struct {
	TransactionHash string `json:"transactionHash"`
	ChainID         string `json:"chainId"`
	Status          int    `json:"status"`
}

const statusVersion = "2.0.0"

// Status answers one row per id, preserving input order. Unparseable ids
// map to 400, unknown ids to 404; stored requests map their lifecycle
// state to the HTTP-shaped integers.
func (c *Coordinator) Status(ids []string) []StatusRow {
	rows := make([]StatusRow, 0, len(ids))
	for _, id := range ids {
		row := StatusRow{
			Version:         statusVersion,
			ID:              id,
			Receipts:        []interface{}{},
			Resubmissions:   []ResubmissionRow{},
			OffchainFailure: []string{},
			OnchainFailure:  []string{},
		}
		if _, err := uuid.Parse(id); err != nil {
			row.Status = 400
			rows = append(rows, row)
			continue
		}
		record, err := c.store.GetRequest(id)
		if err != nil || record == nil {
			if err != nil {
				c.logger.Warn("status read failed", "id", id, "err", err)
			}
			row.Status = 404
			rows = append(rows, row)
			continue
		}
		row.Status = record.Status.HTTPCode()
		if record.ErrorMessage != "" {
			row.OffchainFailure = append(row.OffchainFailure, record.ErrorMessage)
		}
		events, err := c.store.ListResubmissions(id)
		if err != nil {
			c.logger.Warn("resubmission read failed", "id", id, "err", err)
		}
		for _, ev := range events {
			row.Resubmissions = append(row.Resubmissions, ResubmissionRow{
				TransactionHash: ev.TxHash.Hex(),
				ChainID:         formatChainID(ev.ChainID),
				Status:          ev.StatusCode,
			})
		}
		rows = append(rows, row)
	}
	return rows
}

// PaymentCapability is one advertised payment mode.
type PaymentCapability struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

// Capabilities advertises native, one erc20 entry per supported token,
// and sponsored. Addresses travel in the 0x-lowercase wire form.
func (c *Coordinator) Capabilities() []PaymentCapability {
	caps := []PaymentCapability{
		{Type: string(types.PaymentNative), Token: lowerHex(common.Address{})},
	}
	for _, token := range c.cfg.SupportedTokens() {
		caps = append(caps, PaymentCapability{Type: string(types.PaymentERC20), Token: lowerHex(token)})
	}
	caps = append(caps, PaymentCapability{Type: string(types.PaymentSponsored)})
	return caps
}

// QuoteResult is the relayer_getQuote response body.
type QuoteResult struct {
	Quote        QuoteBody     `json:"quote"`
	RelayerCalls []RelayerCall `json:"relayerCalls"`
	FeeCollector string        `json:"feeCollector"`
	RevertReason string        `json:"revertReason"`
}

type QuoteBody struct {
	Fee   string     `json:"fee"`
	Rate  string     `json:"rate"`
	Token QuoteToken `json:"token"`
}

type QuoteToken struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
}

type RelayerCall struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

// Quote prices one prospective call. Pricing is native-only here: the
// erc20 rate surface lives on relayer_getFeeData.
func (c *Coordinator) Quote(ctx context.Context, to common.Address, data []byte, chainID uint64) (*QuoteResult, error) {
	if !c.cfg.IsChainSupported(chainID) {
		return nil, errInvalidParams("unsupported chain id %d", chainID)
	}
	native, err := c.pricer.Quote(ctx, chainID, common.Address{})
	if err != nil {
		return nil, errInternal("pricing failed: %v", err)
	}
	result := &QuoteResult{
		Quote: QuoteBody{
			Fee:  "0",
			Rate: native.Rate,
			Token: QuoteToken{
				Address:  lowerHex(native.Token.Address),
				Decimals: native.Token.Decimals,
			},
		},
		RelayerCalls: []RelayerCall{{To: lowerHex(to), Data: hexutil.Encode(data)}},
		FeeCollector: lowerHex(native.FeeCollector),
	}
	gasLimit, err := c.sim.Simulate(ctx, to, data, chainID)
	if err != nil {
		result.RevertReason = err.Error()
		return result, nil
	}
	rate, _, perr := big.ParseFloat(native.Rate, 10, 256, big.ToNearestEven)
	if perr == nil {
		fee := new(big.Float).Mul(rate, new(big.Float).SetUint64(gasLimit))
		result.Quote.Fee = fee.Text('f', 18)
	}
	return result, nil
}

func formatChainID(id uint64) string {
	return new(big.Int).SetUint64(id).String()
}

// lowerHex formats an address in the 0x-lowercase wire form.
func lowerHex(addr common.Address) string {
	return "0x" + common.Bytes2Hex(addr.Bytes())
}
