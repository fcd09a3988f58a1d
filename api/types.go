package api

import "github.com/etherspot/relayx/relayer"

// Request payloads. Every relayer_* method takes one object argument
// (the legacy one-element-array convention); chain ids travel as decimal
// strings and all byte-ish scalars as 0x hex.

type PaymentArgs struct {
	Type  string `json:"type"`
	Token string `json:"token"`
	Data  string `json:"data,omitempty"`
}

type CapabilitiesArgs struct {
	Payment PaymentArgs `json:"payment"`
}

type SendTransactionArgs struct {
	To                string           `json:"to"`
	Data              string           `json:"data"`
	ChainID           string           `json:"chainId"`
	Capabilities      CapabilitiesArgs `json:"capabilities"`
	AuthorizationList string           `json:"authorizationList,omitempty"`
}

type MultichainTransactionArgs struct {
	To                string `json:"to"`
	Data              string `json:"data"`
	ChainID           string `json:"chainId"`
	AuthorizationList string `json:"authorizationList,omitempty"`
}

type SendTransactionMultichainArgs struct {
	Transactions   []MultichainTransactionArgs `json:"transactions"`
	Capabilities   CapabilitiesArgs            `json:"capabilities"`
	PaymentChainID string                      `json:"paymentChainId"`
}

type StatusArgs struct {
	IDs []string `json:"ids"`
}

type CapabilitiesQueryArgs struct{}

type FeeDataArgs struct {
	Token   string `json:"token"`
	ChainID string `json:"chainId"`
}

type QuoteArgs struct {
	To      string `json:"to"`
	Data    string `json:"data"`
	ChainID string `json:"chainId"`
}

// Response payloads.

type SubmitRow struct {
	ChainID string `json:"chainId"`
	ID      string `json:"id"`
}

type SendResult struct {
	Result []SubmitRow `json:"result"`
}

type StatusResult struct {
	Result []relayer.StatusRow `json:"result"`
}

type CapabilitiesResult struct {
	Capabilities CapabilitiesBody `json:"capabilities"`
}

type CapabilitiesBody struct {
	Payment []relayer.PaymentCapability `json:"payment"`
}

type FeeDataResult struct {
	Result []FeeDataItem `json:"result"`
}

type FeeDataItem struct {
	Quote                *FeeQuoteBody `json:"quote,omitempty"`
	GasPrice             string        `json:"gasPrice,omitempty"`
	MaxFeePerGas         string        `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas string        `json:"maxPriorityFeePerGas,omitempty"`
	FeeCollector         string        `json:"feeCollector,omitempty"`
	Expiry               int64         `json:"expiry,omitempty"`
	Error                *FeeDataError `json:"error,omitempty"`
}

type FeeQuoteBody struct {
	Rate  string       `json:"rate"`
	Token FeeTokenBody `json:"token"`
}

type FeeTokenBody struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
}

type FeeDataError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type HealthResult struct {
	Status            string `json:"status"`
	Timestamp         string `json:"timestamp"`
	UptimeSeconds     uint64 `json:"uptime_seconds"`
	TotalRequests     uint64 `json:"total_requests"`
	PendingRequests   uint64 `json:"pending_requests"`
	CompletedRequests uint64 `json:"completed_requests"`
	FailedRequests    uint64 `json:"failed_requests"`
}
