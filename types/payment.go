package types

import "github.com/ethereum/go-ethereum/common"

// PaymentType tags who pays the relayer for the native gas it fronts.
type PaymentType string

const (
	// PaymentNative settles from the wallet's own native balance.
	PaymentNative PaymentType = "native"
	// PaymentERC20 settles in a whitelisted token.
	PaymentERC20 PaymentType = "erc20"
	// PaymentSponsored means the relayer eats the cost.
	PaymentSponsored PaymentType = "sponsored"
)

// Known reports whether the tag is one the relayer understands. Unknown
// tags are rejected with UnsupportedCapability at intake.
func (t PaymentType) Known() bool {
	switch t {
	case PaymentNative, PaymentERC20, PaymentSponsored:
		return true
	}
	return false
}

// Payment is the declared payment mode of a request. Token is only
// meaningful for the erc20 variant; native requires the zero address.
type Payment struct {
	Type  PaymentType    `json:"type"`
	Token common.Address `json:"token"`
}
