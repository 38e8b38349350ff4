package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vitwit/scanpay/logger"
	"github.com/vitwit/scanpay/types"
)

// DefaultFallbackGasLimit is used for calls whose gas cannot be estimated
// before the previous call in the batch is mined.
const DefaultFallbackGasLimit uint64 = 200_000

// txBackend is the subset of *ethclient.Client the local session uses.
type txBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	Close()
}

// LocalSession sends each call as its own transaction from a locally held
// key. Calls get consecutive nonces, so they are mined in batch order; the
// batch is not atomic.
type LocalSession struct {
	network     types.Network
	chainID     *big.Int
	eth         txBackend
	signer      *KeySigner
	fallbackGas uint64
	log         logger.Logger
}

var _ Session = (*LocalSession)(nil)

func NewLocalSession(network types.Network, eth txBackend, signer *KeySigner, fallbackGas uint64, log logger.Logger) *LocalSession {
	if fallbackGas == 0 {
		fallbackGas = DefaultFallbackGasLimit
	}
	return &LocalSession{
		network:     network,
		chainID:     safeBig(network.ChainID()),
		eth:         eth,
		signer:      signer,
		fallbackGas: fallbackGas,
		log:         logger.OrNoop(log).With(map[string]any{"session": "local", "network": network}),
	}
}

func (s *LocalSession) CurrentAccount() (common.Address, bool) {
	if s.signer == nil {
		return common.Address{}, false
	}
	return s.signer.Address(), true
}

func (s *LocalSession) Network() types.Network { return s.network }

// Relay signs and broadcasts every call. The returned handle tracks the last
// transaction, which can only be mined after all earlier ones.
func (s *LocalSession) Relay(ctx context.Context, calls []types.Call) (*types.OperationHandle, error) {
	from, ok := s.CurrentAccount()
	if !ok {
		return nil, relayErr(ErrReasonNoAccount, ErrNoSigner)
	}
	if len(calls) == 0 {
		return nil, relayErr(ErrReasonEmptyBatch, nil)
	}

	nonce, err := s.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, relayErr(ErrReasonNonce, err)
	}

	gasPrice, err := s.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, relayErr(ErrReasonGasPrice, err)
	}

	var last common.Hash
	for i, call := range calls {
		to := call.To()
		gasLimit, err := s.eth.EstimateGas(ctx, ethereum.CallMsg{
			From:  from,
			To:    &to,
			Value: call.Value(),
			Data:  call.Data(),
		})
		if err != nil || gasLimit == 0 {
			s.log.Debug("gas estimation failed, using fallback", map[string]any{
				"call":     i,
				"fallback": s.fallbackGas,
				"error":    err,
			})
			gasLimit = s.fallbackGas
		}

		tx := ethtypes.NewTx(&ethtypes.LegacyTx{
			Nonce:    nonce + uint64(i),
			To:       &to,
			Value:    call.Value(),
			Gas:      gasLimit,
			GasPrice: gasPrice,
			Data:     call.Data(),
		})

		signed, err := s.signer.SignTx(tx, s.chainID)
		if err != nil {
			return nil, relayErr(ErrReasonSign, err)
		}

		if err := s.eth.SendTransaction(ctx, signed); err != nil {
			if i > 0 {
				return nil, relayErr(ErrReasonSend, fmt.Errorf("call %d after %s: %w", i, last.Hex(), err))
			}
			return nil, relayErr(ErrReasonSend, err)
		}

		last = signed.Hash()
		s.log.Info("transaction sent", map[string]any{
			"txHash": last.Hex(),
			"nonce":  nonce + uint64(i),
			"call":   i,
		})
	}

	return &types.OperationHandle{
		ID:          last.Hex(),
		Kind:        types.HandleTransaction,
		Account:     from,
		Network:     s.network,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func (s *LocalSession) FetchReceipt(ctx context.Context, handle *types.OperationHandle) (*types.Receipt, error) {
	if handle == nil || handle.ID == "" {
		return nil, relayErr(ErrReasonBadHandle, nil)
	}
	if handle.Kind != types.HandleTransaction {
		return nil, relayErr(ErrReasonUnsupported, fmt.Errorf("handle kind %q", handle.Kind))
	}

	r, err := s.eth.TransactionReceipt(ctx, common.HexToHash(handle.ID))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, relayErr(ErrReasonReceipt, err)
	}

	receipt := &types.Receipt{
		OperationID: handle.ID,
		TxHash:      r.TxHash.Hex(),
		Success:     r.Status == ethtypes.ReceiptStatusSuccessful,
	}
	if r.BlockNumber != nil {
		receipt.BlockNumber = r.BlockNumber.Uint64()
	}
	if !receipt.Success {
		receipt.Reason = "transaction reverted"
	}
	return receipt, nil
}

func (s *LocalSession) Close() {
	if s.eth != nil {
		s.eth.Close()
	}
}
