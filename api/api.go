// Package api shapes the public JSON-RPC surface: parameter decoding,
// dispatch into the lifecycle coordinator and its siblings, and the
// HTTP/CORS stack underneath.
package api

import (
	"context"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/etherspot/relayx/config"
	"github.com/etherspot/relayx/relayer"
	"github.com/etherspot/relayx/storage"
	"github.com/etherspot/relayx/types"
)

// Telemetry receives errors worth reporting off-process. The sink itself
// is an external collaborator; a no-op implementation is the default.
type Telemetry interface {
	CaptureError(method string, err error)
}

type noopTelemetry struct{}

func (noopTelemetry) CaptureError(string, error) {}

// RelayerAPI implements the relayer_* namespace.
type RelayerAPI struct {
	cfg       *config.Config
	coord     *relayer.Coordinator
	pricer    *relayer.Pricer
	telemetry Telemetry
	logger    log.Logger
}

func NewRelayerAPI(cfg *config.Config, coord *relayer.Coordinator, pricer *relayer.Pricer, telemetry Telemetry) *RelayerAPI {
	if telemetry == nil {
		telemetry = noopTelemetry{}
	}
	return &RelayerAPI{
		cfg:       cfg,
		coord:     coord,
		pricer:    pricer,
		telemetry: telemetry,
		logger:    log.New("component", "api"),
	}
}

// fail logs and forwards an error before returning it to the RPC layer.
func (api *RelayerAPI) fail(method string, err error) error {
	api.logger.Info("request rejected", "method", method, "err", err)
	api.telemetry.CaptureError(method, err)
	return err
}

// SendTransaction serves relayer_sendTransaction.
func (api *RelayerAPI) SendTransaction(ctx context.Context, args SendTransactionArgs) (*SendResult, error) {
	const method = "relayer_sendTransaction"
	api.logger.Debug("request", "method", method, "to", args.To, "chain", args.ChainID)
	sub, err := parseSubmission(args.To, args.Data, args.ChainID, args.AuthorizationList)
	if err != nil {
		return nil, api.fail(method, err)
	}
	sub.Payment, err = parsePayment(args.Capabilities.Payment)
	if err != nil {
		return nil, api.fail(method, err)
	}
	res, err := api.coord.Submit(ctx, sub)
	if err != nil {
		return nil, api.fail(method, err)
	}
	api.logger.Info("request submitted", "method", method, "id", res.ID, "chain", res.ChainID)
	return &SendResult{Result: []SubmitRow{{ChainID: formatChainID(res.ChainID), ID: res.ID}}}, nil
}

// SendTransactionMultichain serves relayer_sendTransactionMultichain.
// Rows are an independent best-effort batch, not an atomic bundle.
func (api *RelayerAPI) SendTransactionMultichain(ctx context.Context, args SendTransactionMultichainArgs) (*SendResult, error) {
	const method = "relayer_sendTransactionMultichain"
	api.logger.Debug("request", "method", method, "rows", len(args.Transactions))
	if len(args.Transactions) == 0 {
		return nil, api.fail(method, relayer.NewInvalidParamsError("empty transaction batch"))
	}
	paymentChainID, err := parseChainID(args.PaymentChainID)
	if err != nil {
		return nil, api.fail(method, err)
	}
	payment, err := parsePayment(args.Capabilities.Payment)
	if err != nil {
		return nil, api.fail(method, err)
	}
	subs := make([]relayer.Submission, 0, len(args.Transactions))
	for _, tx := range args.Transactions {
		sub, err := parseSubmission(tx.To, tx.Data, tx.ChainID, tx.AuthorizationList)
		if err != nil {
			return nil, api.fail(method, err)
		}
		subs = append(subs, sub)
	}
	results, err := api.coord.SubmitMultichain(ctx, subs, payment, paymentChainID)
	if err != nil {
		return nil, api.fail(method, err)
	}
	rows := make([]SubmitRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, SubmitRow{ChainID: formatChainID(r.ChainID), ID: r.ID})
	}
	api.logger.Info("batch submitted", "method", method, "rows", len(rows))
	return &SendResult{Result: rows}, nil
}

// GetStatus serves relayer_getStatus. An empty id list yields an empty
// result.
func (api *RelayerAPI) GetStatus(ctx context.Context, args StatusArgs) (*StatusResult, error) {
	api.logger.Debug("request", "method", "relayer_getStatus", "ids", len(args.IDs))
	rows := api.coord.Status(args.IDs)
	if rows == nil {
		rows = []relayer.StatusRow{}
	}
	return &StatusResult{Result: rows}, nil
}

// GetCapabilities serves relayer_getCapabilities.
func (api *RelayerAPI) GetCapabilities(ctx context.Context, args CapabilitiesQueryArgs) (*CapabilitiesResult, error) {
	return &CapabilitiesResult{Capabilities: CapabilitiesBody{Payment: api.coord.Capabilities()}}, nil
}

// GetFeeData serves relayer_getFeeData. Pricing failures come back as an
// error item inside the envelope, not as a JSON-RPC error.
func (api *RelayerAPI) GetFeeData(ctx context.Context, args FeeDataArgs) (*FeeDataResult, error) {
	const method = "relayer_getFeeData"
	chainID, err := parseChainID(args.ChainID)
	if err != nil {
		return nil, api.fail(method, err)
	}
	token, err := api.resolveToken(args.Token)
	if err != nil {
		return nil, api.fail(method, err)
	}
	quote, qerr := api.pricer.Quote(ctx, chainID, token)
	if qerr != nil {
		api.logger.Info("pricing failed", "method", method, "chain", chainID, "token", token, "err", qerr)
		return &FeeDataResult{Result: []FeeDataItem{{
			Error: &FeeDataError{ID: uuid.NewString(), Message: qerr.Error()},
		}}}, nil
	}
	return &FeeDataResult{Result: []FeeDataItem{{
		Quote: &FeeQuoteBody{
			Rate: quote.Rate,
			Token: FeeTokenBody{
				Address:  lowerHex(quote.Token.Address),
				Decimals: quote.Token.Decimals,
			},
		},
		GasPrice:     quote.GasPrice,
		FeeCollector: lowerHex(quote.FeeCollector),
		Expiry:       quote.Expiry,
	}}}, nil
}

// GetExchangeRate serves relayer_getExchangeRate, an alias for
// relayer_getFeeData.
func (api *RelayerAPI) GetExchangeRate(ctx context.Context, args FeeDataArgs) (*FeeDataResult, error) {
	return api.GetFeeData(ctx, args)
}

// GetQuote serves relayer_getQuote.
func (api *RelayerAPI) GetQuote(ctx context.Context, args QuoteArgs) (*relayer.QuoteResult, error) {
	const method = "relayer_getQuote"
	to, err := parseAddress(args.To)
	if err != nil {
		return nil, api.fail(method, err)
	}
	data, err := parseData(args.Data)
	if err != nil {
		return nil, api.fail(method, err)
	}
	chainID, err := parseChainID(args.ChainID)
	if err != nil {
		return nil, api.fail(method, err)
	}
	result, err := api.coord.Quote(ctx, to, data, chainID)
	if err != nil {
		return nil, api.fail(method, err)
	}
	return result, nil
}

// resolveToken maps an empty token argument to the configured default
// token (or the native zero address when none is set).
func (api *RelayerAPI) resolveToken(raw string) (common.Address, error) {
	if raw == "" {
		if token, ok := api.cfg.DefaultToken(); ok {
			return token, nil
		}
		return common.Address{}, nil
	}
	return parseAddress(raw)
}

// HealthAPI implements the health namespace; health_check takes no
// arguments.
type HealthAPI struct {
	store *storage.Store
}

func NewHealthAPI(store *storage.Store) *HealthAPI {
	return &HealthAPI{store: store}
}

// Check serves health_check.
func (h *HealthAPI) Check(ctx context.Context) (*HealthResult, error) {
	total, err := h.store.Count()
	if err != nil {
		return nil, err
	}
	pending, err := h.store.CountByStatus(types.StatusPending)
	if err != nil {
		return nil, err
	}
	completed, err := h.store.CountByStatus(types.StatusCompleted)
	if err != nil {
		return nil, err
	}
	failed, err := h.store.CountByStatus(types.StatusFailed)
	if err != nil {
		return nil, err
	}
	return &HealthResult{
		Status:            "healthy",
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds:     h.store.Uptime(),
		TotalRequests:     total,
		PendingRequests:   pending,
		CompletedRequests: completed,
		FailedRequests:    failed,
	}, nil
}

// Parse helpers. Wire scalars: decimal-string chain ids, 0x hex bytes.

func parseSubmission(to, data, chainID, authList string) (relayer.Submission, error) {
	var sub relayer.Submission
	addr, err := parseAddress(to)
	if err != nil {
		return sub, err
	}
	payload, err := parseData(data)
	if err != nil {
		return sub, err
	}
	id, err := parseChainID(chainID)
	if err != nil {
		return sub, err
	}
	var auths []byte
	if authList != "" {
		auths, err = hexutil.Decode(authList)
		if err != nil {
			return sub, relayer.NewInvalidParamsError("invalid authorizationList hex: %v", err)
		}
	}
	sub.To = addr
	sub.Data = payload
	sub.ChainID = id
	sub.AuthorizationList = auths
	return sub, nil
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, relayer.NewInvalidParamsError("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

func parseData(raw string) ([]byte, error) {
	if raw == "" {
		return nil, relayer.NewInvalidParamsError("missing calldata")
	}
	data, err := hexutil.Decode(raw)
	if err != nil {
		return nil, relayer.NewInvalidParamsError("invalid calldata hex: %v", err)
	}
	return data, nil
}

func parseChainID(raw string) (uint64, error) {
	if raw == "" {
		return 0, relayer.NewInvalidParamsError("missing chain id")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, relayer.NewInvalidParamsError("invalid chain id %q", raw)
	}
	return id, nil
}

func parsePayment(p PaymentArgs) (types.Payment, error) {
	payment := types.Payment{Type: types.PaymentType(p.Type)}
	switch payment.Type {
	case types.PaymentERC20:
		if !common.IsHexAddress(p.Token) {
			return payment, relayer.NewUnsupportedTokenError("payment token %q is not a valid address", p.Token)
		}
		payment.Token = common.HexToAddress(p.Token)
	default:
		if p.Token != "" {
			if !common.IsHexAddress(p.Token) {
				return payment, relayer.NewInvalidParamsError("invalid payment token %q", p.Token)
			}
			payment.Token = common.HexToAddress(p.Token)
		}
	}
	return payment, nil
}

func formatChainID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// lowerHex formats an address in the 0x-lowercase wire form.
func lowerHex(addr common.Address) string {
	return "0x" + common.Bytes2Hex(addr.Bytes())
}
