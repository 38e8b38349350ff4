package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/vitwit/scanpay/logger"
	"github.com/vitwit/scanpay/types"
	"github.com/vitwit/scanpay/utils"
)

// Session is the connected account and its relay capability. The processor
// only reads the account identity and invokes Relay / FetchReceipt.
type Session interface {
	CurrentAccount() (common.Address, bool)
	Relay(ctx context.Context, calls []types.Call) (*types.OperationHandle, error)
	// FetchReceipt returns nil, nil while the operation is still pending.
	FetchReceipt(ctx context.Context, handle *types.OperationHandle) (*types.Receipt, error)
	Network() types.Network
	Close()
}

// Signer signs 32-byte digests on behalf of an account owner.
type Signer interface {
	Address() common.Address
	SignHash(hash []byte) ([]byte, error)
}

// KeySigner is a Signer backed by an in-memory secp256k1 key.
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

var _ Signer = (*KeySigner)(nil)

func NewKeySigner(hexKey string) (*KeySigner, error) {
	key, err := utils.PrivateKeyFromHex(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid signer key: %w", err)
	}
	return &KeySigner{key: key, addr: utils.AddressFromPrivateKey(key)}, nil
}

func (s *KeySigner) Address() common.Address { return s.addr }

// SignHash returns an EIP-191 personal signature over hash with v in {27, 28}.
func (s *KeySigner) SignHash(hash []byte) ([]byte, error) {
	return utils.SignPersonalHash(hash, s.key)
}

// SignTx signs a transaction for chainID with the EIP-155 signer.
func (s *KeySigner) SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
	return ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(chainID), s.key)
}

// NewSession builds the session variant selected by cfg.Provider. A missing
// signer key yields a session with no active account.
func NewSession(ctx context.Context, cfg *types.ScanPayConfig, log logger.Logger) (Session, error) {
	var signer *KeySigner
	if cfg.SignerKey != "" {
		s, err := NewKeySigner(cfg.SignerKey)
		if err != nil {
			return nil, err
		}
		signer = s
	}

	switch cfg.Provider {
	case types.ProviderEmbedded:
		node, err := rpc.DialContext(ctx, cfg.RPCUrl)
		if err != nil {
			return nil, fmt.Errorf("node rpc dial: %w", err)
		}
		bundler, err := rpc.DialContext(ctx, cfg.BundlerURL)
		if err != nil {
			node.Close()
			return nil, fmt.Errorf("bundler rpc dial: %w", err)
		}
		var paymaster rpcCaller
		if cfg.PaymasterURL != "" {
			pm, err := rpc.DialContext(ctx, cfg.PaymasterURL)
			if err != nil {
				node.Close()
				bundler.Close()
				return nil, fmt.Errorf("paymaster rpc dial: %w", err)
			}
			paymaster = pm
		}

		var s Signer
		if signer != nil {
			s = signer
		}
		return NewBundlerSession(BundlerConfig{
			Network:    cfg.Network,
			EntryPoint: common.HexToAddress(cfg.EntryPoint),
			Account:    common.HexToAddress(cfg.AccountAddress),
		}, node, bundler, paymaster, s, log), nil

	case types.ProviderLocal:
		eth, err := ethclient.DialContext(ctx, cfg.RPCUrl)
		if err != nil {
			return nil, fmt.Errorf("ethereum rpc dial: %w", err)
		}
		return NewLocalSession(cfg.Network, eth, signer, cfg.FallbackGasLimit, log), nil

	default:
		return nil, &types.ScanPayError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("unsupported provider: %s", cfg.Provider),
		}
	}
}
