package clients

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"decimals","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"symbol","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

var tokenABI = mustParseABI(erc20ABI)

// ContractCaller performs read-only contract calls. *ethclient.Client
// satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type TokenReader interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Decimals(ctx context.Context) (uint8, error)
	Symbol(ctx context.Context) (string, error)
}

type ERC20 struct {
	token  common.Address
	caller ContractCaller
}

var _ TokenReader = (*ERC20)(nil)

func NewERC20(token common.Address, caller ContractCaller) *ERC20 {
	return &ERC20{token: token, caller: caller}
}

func (e *ERC20) Address() common.Address { return e.token }

func (e *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	var out *big.Int
	if err := e.call(ctx, &out, "balanceOf", owner); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *ERC20) Decimals(ctx context.Context) (uint8, error) {
	var out uint8
	if err := e.call(ctx, &out, "decimals"); err != nil {
		return 0, err
	}
	return out, nil
}

func (e *ERC20) Symbol(ctx context.Context) (string, error) {
	var out string
	if err := e.call(ctx, &out, "symbol"); err != nil {
		return "", err
	}
	return out, nil
}

func (e *ERC20) call(ctx context.Context, out any, method string, args ...any) error {
	data, err := tokenABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("erc20 %s: pack: %w", method, err)
	}

	res, err := e.caller.CallContract(ctx, ethereum.CallMsg{To: &e.token, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("erc20 %s: %w", method, err)
	}

	vals, err := tokenABI.Unpack(method, res)
	if err != nil {
		return fmt.Errorf("erc20 %s: unpack: %w", method, err)
	}
	if len(vals) == 0 {
		return fmt.Errorf("erc20 %s: empty result", method)
	}

	switch o := out.(type) {
	case **big.Int:
		v, ok := vals[0].(*big.Int)
		if !ok {
			return fmt.Errorf("erc20 %s: unexpected type %T", method, vals[0])
		}
		*o = v
	case *uint8:
		v, ok := vals[0].(uint8)
		if !ok {
			return fmt.Errorf("erc20 %s: unexpected type %T", method, vals[0])
		}
		*o = v
	case *string:
		v, ok := vals[0].(string)
		if !ok {
			return fmt.Errorf("erc20 %s: unexpected type %T", method, vals[0])
		}
		*o = v
	}
	return nil
}
