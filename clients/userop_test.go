package clients

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/scanpay/types"
)

var testEntryPoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")

func sampleOp() *UserOperation {
	return &UserOperation{
		Sender:               common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Nonce:                big.NewInt(3),
		CallData:             []byte{0xde, 0xad, 0xbe, 0xef},
		CallGasLimit:         big.NewInt(100_000),
		VerificationGasLimit: big.NewInt(150_000),
		PreVerificationGas:   big.NewInt(45_000),
		MaxFeePerGas:         big.NewInt(2_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
	}
}

func TestUserOperationHash(t *testing.T) {
	op := sampleOp()

	h1, err := op.Hash(testEntryPoint, big.NewInt(84532))
	require.NoError(t, err)
	h2, err := op.Hash(testEntryPoint, big.NewInt(84532))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	other, err := op.Hash(testEntryPoint, big.NewInt(8453))
	require.NoError(t, err)
	assert.NotEqual(t, h1, other, "hash must commit to the chain id")

	op.Signature = []byte{0x01}
	signed, err := op.Hash(testEntryPoint, big.NewInt(84532))
	require.NoError(t, err)
	assert.Equal(t, h1, signed, "signature is not part of the hash")

	op.PaymasterAndData = common.FromHex("0x2222222222222222222222222222222222222222")
	sponsored, err := op.Hash(testEntryPoint, big.NewInt(84532))
	require.NoError(t, err)
	assert.NotEqual(t, h1, sponsored)
}

func TestUserOperationJSON(t *testing.T) {
	op := sampleOp()

	raw, err := json.Marshal(op)
	require.NoError(t, err)

	var fields map[string]string
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "0x3", fields["nonce"])
	assert.Equal(t, "0xdeadbeef", fields["callData"])
	assert.Equal(t, "0x", fields["initCode"])
	assert.Equal(t, "0x186a0", fields["callGasLimit"])

	var back UserOperation
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, op.Sender, back.Sender)
	assert.Equal(t, 0, op.Nonce.Cmp(back.Nonce))
	assert.Equal(t, op.CallData, []byte(back.CallData))
}

func TestEncodeExecuteBatch(t *testing.T) {
	token := common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	contract := common.HexToAddress("0x3333333333333333333333333333333333333333")
	calls := []types.Call{
		types.NewCall(token, nil, []byte{0x09, 0x5e, 0xa7, 0xb3}),
		types.NewCall(contract, nil, []byte{0xaa, 0xbb}),
	}

	data, err := EncodeExecuteBatch(calls)
	require.NoError(t, err)
	assert.Equal(t, accountABI.Methods["executeBatch"].ID, data[:4])

	vals, err := accountABI.Methods["executeBatch"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Len(t, vals, 3)

	dest := vals[0].([]common.Address)
	assert.Equal(t, []common.Address{token, contract}, dest)
	payloads := vals[2].([][]byte)
	assert.Equal(t, []byte{0xaa, 0xbb}, payloads[1])

	_, err = EncodeExecuteBatch(nil)
	assert.Error(t, err)
}
