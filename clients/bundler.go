package clients

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/vitwit/scanpay/logger"
	"github.com/vitwit/scanpay/types"
)

// rpcCaller is the subset of *rpc.Client the bundler session uses.
type rpcCaller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	Close()
}

type BundlerConfig struct {
	Network    types.Network
	EntryPoint common.Address
	Account    common.Address
}

// BundlerSession relays call batches as ERC-4337 user operations from a
// smart account, optionally sponsored by a paymaster.
type BundlerSession struct {
	cfg       BundlerConfig
	chainID   *big.Int
	node      rpcCaller
	bundler   rpcCaller
	paymaster rpcCaller
	signer    Signer
	log       logger.Logger
}

var _ Session = (*BundlerSession)(nil)

// NewBundlerSession wires the session to its endpoints. paymaster and signer
// may be nil: without a paymaster gas is estimated by the bundler, without a
// signer the session has no active account.
func NewBundlerSession(
	cfg BundlerConfig,
	node, bundler, paymaster rpcCaller,
	signer Signer,
	log logger.Logger,
) *BundlerSession {
	return &BundlerSession{
		cfg:       cfg,
		chainID:   safeBig(cfg.Network.ChainID()),
		node:      node,
		bundler:   bundler,
		paymaster: paymaster,
		signer:    signer,
		log:       logger.OrNoop(log).With(map[string]any{"session": "bundler", "network": cfg.Network}),
	}
}

func (s *BundlerSession) CurrentAccount() (common.Address, bool) {
	if s.signer == nil || s.cfg.Account == (common.Address{}) {
		return common.Address{}, false
	}
	return s.cfg.Account, true
}

func (s *BundlerSession) Network() types.Network { return s.cfg.Network }

func (s *BundlerSession) Relay(ctx context.Context, calls []types.Call) (*types.OperationHandle, error) {
	account, ok := s.CurrentAccount()
	if !ok {
		return nil, relayErr(ErrReasonNoAccount, ErrNoSigner)
	}
	if len(calls) == 0 {
		return nil, relayErr(ErrReasonEmptyBatch, nil)
	}

	callData, err := EncodeExecuteBatch(calls)
	if err != nil {
		return nil, relayErr(ErrReasonEncode, err)
	}

	nonce, err := s.accountNonce(ctx, account)
	if err != nil {
		return nil, relayErr(ErrReasonNonce, err)
	}

	maxFee, tip, err := s.gasFees(ctx)
	if err != nil {
		return nil, relayErr(ErrReasonGasPrice, err)
	}

	op := &UserOperation{
		Sender:               account,
		Nonce:                nonce,
		CallData:             callData,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: tip,
		Signature:            dummySignature,
	}

	if err := s.fillGas(ctx, op); err != nil {
		return nil, err
	}

	hash, err := op.Hash(s.cfg.EntryPoint, s.chainID)
	if err != nil {
		return nil, relayErr(ErrReasonSign, err)
	}
	sig, err := s.signer.SignHash(hash.Bytes())
	if err != nil {
		return nil, relayErr(ErrReasonSign, err)
	}
	op.Signature = sig

	var opHash common.Hash
	if err := s.bundler.CallContext(ctx, &opHash, "eth_sendUserOperation", op, s.cfg.EntryPoint); err != nil {
		return nil, relayErr(ErrReasonSend, err)
	}

	s.log.Info("user operation sent", map[string]any{
		"userOpHash": opHash.Hex(),
		"sender":     account.Hex(),
		"nonce":      nonce.String(),
		"sponsored":  len(op.PaymasterAndData) > 0,
	})

	return &types.OperationHandle{
		ID:          opHash.Hex(),
		Kind:        types.HandleUserOperation,
		Account:     account,
		Network:     s.cfg.Network,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

type userOpReceipt struct {
	UserOpHash common.Hash    `json:"userOpHash"`
	Sender     common.Address `json:"sender"`
	Success    bool           `json:"success"`
	Reason     string         `json:"reason"`
	Receipt    struct {
		TransactionHash common.Hash    `json:"transactionHash"`
		BlockNumber     hexutil.Uint64 `json:"blockNumber"`
	} `json:"receipt"`
}

func (s *BundlerSession) FetchReceipt(ctx context.Context, handle *types.OperationHandle) (*types.Receipt, error) {
	if handle == nil || handle.ID == "" {
		return nil, relayErr(ErrReasonBadHandle, nil)
	}
	if handle.Kind != types.HandleUserOperation {
		return nil, relayErr(ErrReasonUnsupported, fmt.Errorf("handle kind %q", handle.Kind))
	}

	var r *userOpReceipt
	if err := s.bundler.CallContext(ctx, &r, "eth_getUserOperationReceipt", handle.ID); err != nil {
		return nil, relayErr(ErrReasonReceipt, err)
	}
	if r == nil {
		return nil, nil
	}

	return &types.Receipt{
		OperationID: handle.ID,
		TxHash:      r.Receipt.TransactionHash.Hex(),
		BlockNumber: uint64(r.Receipt.BlockNumber),
		Success:     r.Success,
		Reason:      r.Reason,
	}, nil
}

func (s *BundlerSession) Close() {
	for _, c := range []rpcCaller{s.node, s.bundler, s.paymaster} {
		if c != nil {
			c.Close()
		}
	}
}

// accountNonce reads EntryPoint.getNonce(sender, 0).
func (s *BundlerSession) accountNonce(ctx context.Context, account common.Address) (*big.Int, error) {
	data, err := accountABI.Pack("getNonce", account, new(big.Int))
	if err != nil {
		return nil, err
	}

	var out hexutil.Bytes
	call := map[string]any{
		"to":   s.cfg.EntryPoint,
		"data": hexutil.Bytes(data),
	}
	if err := s.node.CallContext(ctx, &out, "eth_call", call, "latest"); err != nil {
		return nil, err
	}

	vals, err := accountABI.Unpack("getNonce", out)
	if err != nil {
		return nil, err
	}
	nonce, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected nonce type %T", vals[0])
	}
	return nonce, nil
}

// gasFees returns maxFeePerGas and maxPriorityFeePerGas. Nodes without
// eth_maxPriorityFeePerGas fall back to the legacy gas price as tip.
func (s *BundlerSession) gasFees(ctx context.Context) (*big.Int, *big.Int, error) {
	var price hexutil.Big
	if err := s.node.CallContext(ctx, &price, "eth_gasPrice"); err != nil {
		return nil, nil, err
	}

	var tip hexutil.Big
	if err := s.node.CallContext(ctx, &tip, "eth_maxPriorityFeePerGas"); err != nil {
		s.log.Debug("priority fee unavailable, using gas price", map[string]any{"error": err})
		tip = price
	}

	maxFee := new(big.Int).Add(price.ToInt(), tip.ToInt())
	return maxFee, new(big.Int).Set(tip.ToInt()), nil
}

type gasEstimate struct {
	PreVerificationGas   *hexutil.Big  `json:"preVerificationGas"`
	VerificationGasLimit *hexutil.Big  `json:"verificationGasLimit"`
	CallGasLimit         *hexutil.Big  `json:"callGasLimit"`
	PaymasterAndData     hexutil.Bytes `json:"paymasterAndData,omitempty"`
}

// fillGas sets gas limits, and paymasterAndData when sponsored.
func (s *BundlerSession) fillGas(ctx context.Context, op *UserOperation) error {
	var est gasEstimate

	if s.paymaster != nil {
		if err := s.paymaster.CallContext(ctx, &est, "pm_sponsorUserOperation", op, s.cfg.EntryPoint); err != nil {
			return relayErr(ErrReasonSponsor, err)
		}
		if len(est.PaymasterAndData) < common.AddressLength {
			return relayErr(ErrReasonSponsor, fmt.Errorf("paymaster returned no paymasterAndData"))
		}
		op.PaymasterAndData = est.PaymasterAndData
	} else {
		if err := s.bundler.CallContext(ctx, &est, "eth_estimateUserOperationGas", op, s.cfg.EntryPoint); err != nil {
			return relayErr(ErrReasonEstimate, err)
		}
	}

	if est.CallGasLimit == nil || est.VerificationGasLimit == nil || est.PreVerificationGas == nil {
		return relayErr(ErrReasonEstimate, fmt.Errorf("incomplete gas estimate"))
	}
	op.CallGasLimit = est.CallGasLimit.ToInt()
	op.VerificationGasLimit = est.VerificationGasLimit.ToInt()
	op.PreVerificationGas = est.PreVerificationGas.ToInt()
	return nil
}
