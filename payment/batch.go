package payment

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/scanpay/types"
	"github.com/vitwit/scanpay/utils"
)

const paymentABIJSON = `[
	{"type":"function","name":"approve","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"pay","stateMutability":"nonpayable",
	 "inputs":[{"name":"paymentId","type":"bytes32"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[]}
]`

var paymentABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(paymentABIJSON))
	if err != nil {
		panic(err)
	}
	paymentABI = parsed
}

// Target is the token and payment contract a batch is built against.
type Target struct {
	Token     common.Address
	Contract  common.Address
	PaymentID [32]byte
}

// EncodeBatch scales the amount to base units and encodes
// [approve(contract, amount) on token, pay(paymentId, token, amount) on contract].
// It never touches the network.
func EncodeBatch(v *types.ValidatedPayment, decimals int, target Target) (*types.PaymentBatch, error) {
	if v == nil {
		return nil, encodingError(fmt.Errorf("no validated payment"))
	}

	amount, err := utils.ScaleAmount(v.Amount, decimals)
	if err != nil {
		return nil, encodingError(err)
	}

	approveData, err := paymentABI.Pack("approve", target.Contract, amount)
	if err != nil {
		return nil, encodingError(err)
	}
	payData, err := paymentABI.Pack("pay", target.PaymentID, target.Token, amount)
	if err != nil {
		return nil, encodingError(err)
	}

	return &types.PaymentBatch{
		Calls: []types.Call{
			types.NewCall(target.Token, nil, approveData),
			types.NewCall(target.Contract, nil, payData),
		},
		AmountBase: amount,
		Display:    v.Amount.String(),
		Decimals:   decimals,
	}, nil
}

func encodingError(err error) error {
	return &types.ScanPayError{
		Code:    types.ErrEncoding,
		Message: "payment amount cannot be encoded",
		Err:     err,
	}
}
