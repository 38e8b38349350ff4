package payment

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/scanpay/types"
)

type fakeSession struct {
	mu      sync.Mutex
	account common.Address
	active  bool

	relayErr error
	block    chan struct{}
	relayed  [][]types.Call

	fetch   func(n int) (*types.Receipt, error)
	fetches int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		account: common.HexToAddress("0x4444444444444444444444444444444444444444"),
		active:  true,
	}
}

func (f *fakeSession) CurrentAccount() (common.Address, bool) {
	return f.account, f.active
}

func (f *fakeSession) Relay(ctx context.Context, calls []types.Call) (*types.OperationHandle, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.relayed = append(f.relayed, calls)
	if f.relayErr != nil {
		return nil, f.relayErr
	}
	return &types.OperationHandle{
		ID:          common.BigToHash(big.NewInt(int64(len(f.relayed)))).Hex(),
		Kind:        types.HandleUserOperation,
		Account:     f.account,
		Network:     types.NetworkBaseSepolia,
		SubmittedAt: time.Now(),
	}, nil
}

func (f *fakeSession) FetchReceipt(ctx context.Context, handle *types.OperationHandle) (*types.Receipt, error) {
	f.mu.Lock()
	n := f.fetches
	f.fetches++
	fetch := f.fetch
	f.mu.Unlock()

	if fetch == nil {
		return nil, nil
	}
	return fetch(n)
}

func (f *fakeSession) Network() types.Network { return types.NetworkBaseSepolia }

func (f *fakeSession) Close() {}

func (f *fakeSession) relayCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.relayed)
}

type fakeRecorder struct {
	mu        sync.Mutex
	counters  map[string]int
	latencies map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{counters: map[string]int{}, latencies: map[string]int{}}
}

func (r *fakeRecorder) IncCounter(name string, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name]++
}

func (r *fakeRecorder) ObserveLatency(name string, _ time.Duration, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latencies[name]++
}

func (r *fakeRecorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

func minedReceipt(success bool) func(int) (*types.Receipt, error) {
	return func(int) (*types.Receipt, error) {
		return &types.Receipt{
			TxHash:      "0x00000000000000000000000000000000000000000000000000000000000000aa",
			BlockNumber: 42,
			Success:     success,
		}, nil
	}
}
