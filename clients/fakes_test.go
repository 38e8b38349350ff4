package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

const (
	testKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testKeyAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

type rpcHandler func(args []any) (any, error)

// fakeRPC answers JSON-RPC calls from per-method handlers, round-tripping
// results through JSON like the real client does.
type fakeRPC struct {
	mu       sync.Mutex
	handlers map[string]rpcHandler
	calls    []string
	closed   bool
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{handlers: map[string]rpcHandler{}}
}

func (f *fakeRPC) on(method string, h rpcHandler) *fakeRPC {
	f.handlers[method] = h
	return f
}

func (f *fakeRPC) CallContext(ctx context.Context, result any, method string, args ...any) error {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	h, ok := f.handlers[method]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("the method %s does not exist/is not available", method)
	}

	v, err := h(args)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}

func (f *fakeRPC) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeRPC) called(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}
