package scanpay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/scanpay/scanner"
	"github.com/vitwit/scanpay/types"
)

const (
	merchant        = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	scenarioPayload = `{"ma":"` + merchant + `","a":"12.5"}`
)

type stubSession struct {
	mu      sync.Mutex
	active  bool
	relayed int
	pending bool
	closed  bool
}

func (s *stubSession) setPending(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = v
}

func (s *stubSession) CurrentAccount() (common.Address, bool) {
	return common.HexToAddress("0x4444444444444444444444444444444444444444"), s.active
}

func (s *stubSession) Relay(_ context.Context, calls []types.Call) (*types.OperationHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relayed++
	return &types.OperationHandle{
		ID:      common.BigToHash(big.NewInt(int64(s.relayed))).Hex(),
		Kind:    types.HandleUserOperation,
		Network: types.NetworkBaseSepolia,
	}, nil
}

func (s *stubSession) FetchReceipt(_ context.Context, h *types.OperationHandle) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending {
		return nil, nil
	}
	return &types.Receipt{OperationID: h.ID, TxHash: h.ID, BlockNumber: 1, Success: true}, nil
}

func (s *stubSession) Network() types.Network { return types.NetworkBaseSepolia }

func (s *stubSession) Close() { s.closed = true }

const tokenABI = `[
	{"type":"function","name":"balanceOf","inputs":[{"name":"o","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"decimals","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"symbol","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

type stubCaller struct {
	abi     abi.ABI
	balance *big.Int
	calls   int
}

func newStubCaller(t *testing.T, balance int64) *stubCaller {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(tokenABI))
	require.NoError(t, err)
	return &stubCaller{abi: parsed, balance: big.NewInt(balance)}
}

func (c *stubCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.calls++
	for name, m := range c.abi.Methods {
		if !bytes.Equal(m.ID, msg.Data[:4]) {
			continue
		}
		switch name {
		case "balanceOf":
			return m.Outputs.Pack(c.balance)
		case "decimals":
			return m.Outputs.Pack(uint8(6))
		case "symbol":
			return m.Outputs.Pack("USDC")
		}
	}
	return nil, fmt.Errorf("unknown call")
}

func testConfig() *types.ScanPayConfig {
	return &types.ScanPayConfig{
		Network:  types.NetworkBaseSepolia,
		Provider: types.ProviderLocal,
		RPCUrl:   "http://127.0.0.1:8545",
		Payment: types.PaymentConfig{
			TokenAddress:        "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			TokenDecimals:       6,
			PaymentContract:     "0x3333333333333333333333333333333333333333",
			PaymentID:           common.BigToHash(big.NewInt(1)).Hex(),
			PollInterval:        time.Millisecond,
			ConfirmationTimeout: time.Second,
		},
	}
}

func newTestScanPay(t *testing.T, session *stubSession) *ScanPay {
	t.Helper()
	x, err := New(testConfig(), WithSession(session), WithContractCaller(newStubCaller(t, 12_500_000)))
	require.NoError(t, err)
	return x
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Payment.PaymentID = "0x01"
	_, err := New(cfg, WithSession(&stubSession{}))
	require.Error(t, err)

	var serr *types.ScanPayError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, types.ErrConfigError, serr.Code)

	cfg = testConfig()
	cfg.Network = "solana-mainnet"
	_, err = New(cfg, WithSession(&stubSession{}))
	require.Error(t, err)
}

func TestScanPay_Pay(t *testing.T) {
	session := &stubSession{active: true}
	x := newTestScanPay(t, session)

	res, err := x.Pay(context.Background(), scenarioPayload)
	require.NoError(t, err)
	assert.Equal(t, "12500000", res.Batch.AmountBase.String())
	assert.Equal(t, "https://sepolia.basescan.org/tx/"+res.Receipt.TxHash, res.Receipt.ExplorerURL)
	assert.Equal(t, types.StateConfirmed, x.State())
	assert.Equal(t, 1, session.relayed)

	x.Close()
	assert.True(t, session.closed)
}

func TestScanPay_Process(t *testing.T) {
	session := &stubSession{active: true}
	x := newTestScanPay(t, session)

	p, err := x.Process(scenarioPayload)
	require.NoError(t, err)
	assert.Equal(t, merchant, p.Merchant)
	assert.Equal(t, "12.5", p.Amount)
	assert.Equal(t, "12500000", p.Batch.AmountBase.String())
	assert.Zero(t, session.relayed)
	assert.Equal(t, types.StateIdle, x.State(), "preview does not start an attempt")

	p, err = x.Process(`{"ma":"not-an-address","a":"5"}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidAddressTarget))
	assert.Nil(t, p.Batch)
}

func TestScanPay_ProcessBatch(t *testing.T) {
	x := newTestScanPay(t, &stubSession{active: true})

	previews, err := x.ProcessBatch(context.Background(), []string{
		scenarioPayload,
		"garbage",
		`{"ma":"` + merchant + `","amount":"0.000001"}`,
	})
	require.NoError(t, err)
	require.Len(t, previews, 3)

	assert.NoError(t, previews[0].Err)
	assert.True(t, errors.Is(previews[1].Err, types.ErrParseTarget))
	require.NoError(t, previews[2].Err)
	assert.Equal(t, "1", previews[2].Batch.AmountBase.String())
}

func TestScanPay_Balance(t *testing.T) {
	x := newTestScanPay(t, &stubSession{active: true})

	bal, err := x.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "USDC", bal.Symbol)
	assert.Equal(t, 6, bal.Decimals)
	assert.Equal(t, "12.5", bal.Formatted)

	x = newTestScanPay(t, &stubSession{})
	_, err = x.Balance(context.Background())
	assert.True(t, errors.Is(err, types.ErrNoActiveAccountTarget))
}

func TestScanPay_WatchBalance(t *testing.T) {
	x := newTestScanPay(t, &stubSession{active: true})

	ctx, cancel := context.WithCancel(context.Background())
	var seen int
	err := x.WatchBalance(ctx, time.Millisecond, func(b *types.Balance, err error) {
		require.NoError(t, err)
		assert.Equal(t, "12.5", b.Formatted)
		seen++
		if seen == 3 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, seen)
}

func TestScanPay_ScanRecordsHistory(t *testing.T) {
	session := &stubSession{active: true}
	x := newTestScanPay(t, session)

	ch := make(chan string, 2)
	ch <- `{"ma":"not-an-address","a":"5"}`
	ch <- scenarioPayload
	close(ch)

	var failures, paid int
	err := x.Scan(context.Background(), scanner.NewChannelSource(ch), func(res *Result, err error) {
		if err != nil {
			failures++
			return
		}
		paid++
	})
	require.NoError(t, err)
	assert.Equal(t, 1, failures)
	assert.Equal(t, 1, paid)
	assert.Equal(t, 2, x.History().Len())

	res, err := x.PayFromHistory(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, res.Receipt.Success)
	assert.Equal(t, 2, session.relayed)
}

func newShortTimeoutScanPay(t *testing.T, session *stubSession) *ScanPay {
	t.Helper()
	cfg := testConfig()
	cfg.Payment.ConfirmationTimeout = 20 * time.Millisecond
	x, err := New(cfg, WithSession(session), WithContractCaller(newStubCaller(t, 0)))
	require.NoError(t, err)
	return x
}

func TestScanPay_ScanResumesTimedOutPayment(t *testing.T) {
	session := &stubSession{active: true, pending: true}
	x := newShortTimeoutScanPay(t, session)

	ch := make(chan string, 2)
	ch <- scenarioPayload
	ch <- `{"ma":"` + merchant + `","a":"3"}`
	close(ch)

	var results []*Result
	var errs []error
	err := x.Scan(context.Background(), scanner.NewChannelSource(ch), func(res *Result, err error) {
		results = append(results, res)
		errs = append(errs, err)
		if errors.Is(err, types.ErrConfirmationTimeoutTarget) {
			session.setPending(false)
		}
	})
	require.NoError(t, err)

	require.Len(t, errs, 3)
	assert.ErrorIs(t, errs[0], types.ErrConfirmationTimeoutTarget)

	require.NoError(t, errs[1])
	require.NotNil(t, results[1].Receipt)
	assert.Equal(t, common.BigToHash(big.NewInt(1)).Hex(), results[1].Handle.ID)
	assert.Equal(t, "12.5", results[1].Batch.Display)
	assert.True(t, results[1].Receipt.Success)

	require.NoError(t, errs[2])
	assert.Equal(t, common.BigToHash(big.NewInt(2)).Hex(), results[2].Handle.ID)
	assert.Equal(t, "3", results[2].Batch.Display)

	assert.Equal(t, 2, session.relayed)
	assert.Equal(t, types.StateConfirmed, x.State())
}

func TestScanPay_ScanKeepsRejectingWhileStillPending(t *testing.T) {
	session := &stubSession{active: true, pending: true}
	x := newShortTimeoutScanPay(t, session)

	ch := make(chan string, 2)
	ch <- scenarioPayload
	ch <- `{"ma":"` + merchant + `","a":"3"}`
	close(ch)

	var errs []error
	err := x.Scan(context.Background(), scanner.NewChannelSource(ch), func(_ *Result, err error) {
		errs = append(errs, err)
	})
	require.NoError(t, err)

	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], types.ErrConfirmationTimeoutTarget)
	assert.ErrorIs(t, errs[1], types.ErrPaymentInFlightTarget)
	assert.Equal(t, 1, session.relayed)

	session.setPending(false)
	res, err := x.AwaitPending(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Receipt.Success)
	assert.Equal(t, types.StateConfirmed, x.State())

	res, err = x.AwaitPending(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestGetVersion(t *testing.T) {
	v := GetVersion()
	assert.Equal(t, Version, v["library_version"])
	assert.Contains(t, v["supported_networks"], "base-sepolia")
}
