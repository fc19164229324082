package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// AdminResolver picks the sender for admin-only contract writes. Resolution
// is deterministic and logged: the configured admin address first, then the
// on-chain admin, then the first imported key, then the first node account.
// Student sends never go through the resolver; a student's wallet is either
// signable or the send fails.
type AdminResolver struct {
	client     *Client
	configured common.Address
	logger     *zap.Logger
}

// RotationResult reports the outcome of an adminship check-and-rotate.
type RotationResult struct {
	Rotated  bool   `json:"rotated"`
	Previous string `json:"previous,omitempty"`
	Current  string `json:"current"`
	TxHash   string `json:"tx_hash,omitempty"`
}

func NewAdminResolver(client *Client, configuredAdmin string, logger *zap.Logger) *AdminResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &AdminResolver{client: client, logger: logger}
	if common.IsHexAddress(configuredAdmin) {
		r.configured = common.HexToAddress(configuredAdmin)
	}
	return r
}

// OnChainAdmin reads the contract's current admin address.
func (r *AdminResolver) OnChainAdmin(ctx context.Context) (common.Address, error) {
	return r.client.AdminAddress(ctx)
}

// AdminSender resolves the address admin-only writes are sent from.
func (r *AdminResolver) AdminSender(ctx context.Context) (common.Address, error) {
	if r.configured != (common.Address{}) && r.client.CanSign(r.configured) {
		r.logger.Debug("admin sender resolved from configuration", zap.String("sender", r.configured.Hex()))
		return r.configured, nil
	}

	if onChain, err := r.client.AdminAddress(ctx); err == nil {
		if onChain != (common.Address{}) && r.client.CanSign(onChain) {
			r.logger.Debug("admin sender resolved from on-chain admin", zap.String("sender", onChain.Hex()))
			return onChain, nil
		}
	} else {
		r.logger.Warn("on-chain admin lookup failed during sender resolution", zap.Error(err))
	}

	if keys := r.client.Wallet().Addresses(); len(keys) > 0 {
		r.logger.Debug("admin sender resolved from first imported key", zap.String("sender", keys[0].Hex()))
		return keys[0], nil
	}
	if accounts := r.client.Wallet().NodeAddresses(); len(accounts) > 0 {
		r.logger.Debug("admin sender resolved from first node account", zap.String("sender", accounts[0].Hex()))
		return accounts[0], nil
	}

	return common.Address{}, &SenderUnavailableError{
		Address:     r.configured.Hex(),
		Label:       "admin",
		Remediation: "set CHAIN_ADMIN_ADDRESS to a signable account or import a key via CHAIN_PRIVATE_KEYS",
	}
}

// RequireSender verifies that addr can be signed for. It never substitutes a
// different signer: a feedback send must come from the student's own wallet
// unless sponsorship is explicitly enabled upstream.
func (r *AdminResolver) RequireSender(addr common.Address, label string) error {
	if r.client.CanSign(addr) {
		return nil
	}
	return &SenderUnavailableError{
		Address:     addr.Hex(),
		Label:       label,
		Remediation: "import the key via CHAIN_PRIVATE_KEYS or unlock the account on the node",
	}
}

// EnsureAdmin rotates contract adminship to desired if it is not already the
// admin. The transfer is signed by the current admin; if that account is not
// signable the rotation fails rather than guessing a sender.
func (r *AdminResolver) EnsureAdmin(ctx context.Context, desired common.Address) (*RotationResult, error) {
	current, err := r.client.AdminAddress(ctx)
	if err != nil {
		return nil, err
	}
	if current == desired {
		return &RotationResult{Rotated: false, Current: current.Hex()}, nil
	}

	if err := r.RequireSender(current, "current admin"); err != nil {
		return nil, err
	}

	result, err := r.client.TransferAdmin(ctx, current, desired)
	if err != nil {
		return nil, err
	}

	r.logger.Info("contract adminship rotated",
		zap.String("previous", current.Hex()),
		zap.String("current", desired.Hex()),
		zap.String("tx_hash", result.TxHash),
	)

	return &RotationResult{
		Rotated:  true,
		Previous: current.Hex(),
		Current:  desired.Hex(),
		TxHash:   result.TxHash,
	}, nil
}
