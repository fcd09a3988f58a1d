package relayer

import (
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// decodeAuthorizationList decodes the optional authorizationList blob: a
// canonical RLP list of EIP-7702 signed authorizations. An empty blob is
// an empty list.
func decodeAuthorizationList(blob []byte) ([]gethtypes.SetCodeAuthorization, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var auths []gethtypes.SetCodeAuthorization
	if err := rlp.DecodeBytes(blob, &auths); err != nil {
		return nil, errInvalidSignature("authorization list decode failed: %v", err)
	}
	return auths, nil
}

// validateAuthorizations checks each delegation against the submission:
// the authorization chain id must be zero (any chain) or the target
// chain, the delegate must be the wallet being called, and the authority
// signature must recover.
func validateAuthorizations(auths []gethtypes.SetCodeAuthorization, chainID uint64, wallet common.Address) error {
	for i, auth := range auths {
		if !auth.ChainID.IsZero() && auth.ChainID.Uint64() != chainID {
			return errInvalidSignature("authorization %d is for chain %s, not %d", i, auth.ChainID.String(), chainID)
		}
		if auth.Address != wallet {
			return errInvalidSignature("authorization %d delegates to %s, not the wallet %s", i, auth.Address, wallet)
		}
		if _, err := auth.Authority(); err != nil {
			return errInvalidSignature("authorization %d signature recovery failed: %v", i, err)
		}
	}
	return nil
}
