package clients

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vitwit/scanpay/types"
)

// smartAccountABI covers the calls made against the account and EntryPoint.
const smartAccountABI = `[
	{"type":"function","name":"executeBatch","stateMutability":"nonpayable","outputs":[],
	 "inputs":[{"name":"dest","type":"address[]"},{"name":"value","type":"uint256[]"},{"name":"func","type":"bytes[]"}]},
	{"type":"function","name":"getNonce","stateMutability":"view",
	 "inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],
	 "outputs":[{"name":"nonce","type":"uint256"}]}
]`

var accountABI = mustParseABI(smartAccountABI)

// dummySignature lets bundlers and paymasters simulate validation before the
// real signature exists.
var dummySignature = common.FromHex("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

// UserOperation is an EntryPoint v0.6 user operation.
type UserOperation struct {
	Sender               common.Address
	Nonce                *big.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAndData     []byte
	Signature            []byte
}

type rpcUserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

func (op *UserOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal(rpcUserOperation{
		Sender:               op.Sender,
		Nonce:                hexBig(op.Nonce),
		InitCode:             nonNilBytes(op.InitCode),
		CallData:             nonNilBytes(op.CallData),
		CallGasLimit:         hexBig(op.CallGasLimit),
		VerificationGasLimit: hexBig(op.VerificationGasLimit),
		PreVerificationGas:   hexBig(op.PreVerificationGas),
		MaxFeePerGas:         hexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: hexBig(op.MaxPriorityFeePerGas),
		PaymasterAndData:     nonNilBytes(op.PaymasterAndData),
		Signature:            nonNilBytes(op.Signature),
	})
}

func (op *UserOperation) UnmarshalJSON(data []byte) error {
	var raw rpcUserOperation
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*op = UserOperation{
		Sender:               raw.Sender,
		Nonce:                (*big.Int)(raw.Nonce),
		InitCode:             raw.InitCode,
		CallData:             raw.CallData,
		CallGasLimit:         (*big.Int)(raw.CallGasLimit),
		VerificationGasLimit: (*big.Int)(raw.VerificationGasLimit),
		PreVerificationGas:   (*big.Int)(raw.PreVerificationGas),
		MaxFeePerGas:         (*big.Int)(raw.MaxFeePerGas),
		MaxPriorityFeePerGas: (*big.Int)(raw.MaxPriorityFeePerGas),
		PaymasterAndData:     raw.PaymasterAndData,
		Signature:            raw.Signature,
	}
	return nil
}

// Hash returns the EntryPoint v0.6 user operation hash:
// keccak256(abi.encode(keccak256(pack(op)), entryPoint, chainId)).
func (op *UserOperation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed, err := packArgs.Pack(
		op.Sender,
		safeBig(op.Nonce),
		keccak32(op.InitCode),
		keccak32(op.CallData),
		safeBig(op.CallGasLimit),
		safeBig(op.VerificationGasLimit),
		safeBig(op.PreVerificationGas),
		safeBig(op.MaxFeePerGas),
		safeBig(op.MaxPriorityFeePerGas),
		keccak32(op.PaymasterAndData),
	)
	if err != nil {
		return common.Hash{}, err
	}

	outer, err := hashArgs.Pack(keccak32(packed), entryPoint, safeBig(chainID))
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(outer), nil
}

// EncodeExecuteBatch encodes calls as the smart account's executeBatch input.
func EncodeExecuteBatch(calls []types.Call) ([]byte, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("no calls to encode")
	}

	dest := make([]common.Address, len(calls))
	values := make([]*big.Int, len(calls))
	data := make([][]byte, len(calls))
	for i, c := range calls {
		dest[i] = c.To()
		values[i] = c.Value()
		data[i] = c.Data()
	}
	return accountABI.Pack("executeBatch", dest, values, data)
}

var (
	packArgs = abi.Arguments{
		{Type: mustABIType("address")},
		{Type: mustABIType("uint256")},
		{Type: mustABIType("bytes32")},
		{Type: mustABIType("bytes32")},
		{Type: mustABIType("uint256")},
		{Type: mustABIType("uint256")},
		{Type: mustABIType("uint256")},
		{Type: mustABIType("uint256")},
		{Type: mustABIType("uint256")},
		{Type: mustABIType("bytes32")},
	}
	hashArgs = abi.Arguments{
		{Type: mustABIType("bytes32")},
		{Type: mustABIType("address")},
		{Type: mustABIType("uint256")},
	}
)

func mustABIType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

func keccak32(b []byte) [32]byte {
	return crypto.Keccak256Hash(b)
}

func safeBig(b *big.Int) *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return b
}

func hexBig(b *big.Int) *hexutil.Big {
	return (*hexutil.Big)(safeBig(b))
}

func nonNilBytes(b []byte) hexutil.Bytes {
	if b == nil {
		return hexutil.Bytes{}
	}
	return b
}
