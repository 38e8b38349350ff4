// Package scanpay turns scanned QR payment payloads into batched
// approve + pay operations on EVM chains, relayed through a smart-account
// bundler or sent from a local key.
package scanpay

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/vitwit/scanpay/clients"
	"github.com/vitwit/scanpay/logger"
	"github.com/vitwit/scanpay/metrics"
	"github.com/vitwit/scanpay/payment"
	"github.com/vitwit/scanpay/scanner"
	"github.com/vitwit/scanpay/types"
	"github.com/vitwit/scanpay/utils"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultBalanceInterval = 5 * time.Second
)

// Result is everything one payment attempt produced.
type Result = payment.Result

// ScanPay owns one account session and the payment processor driving it.
type ScanPay struct {
	config    *types.ScanPayConfig
	session   clients.Session
	processor *payment.Processor
	pcfg      payment.Config
	token     *clients.ERC20
	caller    clients.ContractCaller
	history   *scanner.History

	logger  logger.Logger
	metrics metrics.Recorder
	timeout time.Duration

	closers []func()
}

// New validates config and builds the session selected by config.Provider,
// unless one is supplied with WithSession.
func New(config *types.ScanPayConfig, opts ...Option) (*ScanPay, error) {
	if err := utils.ValidateConfig(config); err != nil {
		return nil, err
	}

	x := &ScanPay{
		config:  config,
		history: scanner.NewHistory(scanner.DefaultHistorySize),
		timeout: DefaultTimeout,
	}
	if config.DefaultTimeout > 0 {
		x.timeout = config.DefaultTimeout
	}
	for _, opt := range opts {
		opt(x)
	}
	x.logger = logger.OrNoop(x.logger)
	x.metrics = metrics.OrNoop(x.metrics)

	pcfg, err := payment.ConfigFromScanPay(config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), x.timeout)
	defer cancel()

	if x.session == nil {
		session, err := clients.NewSession(ctx, config, x.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s session for %s: %w", config.Provider, config.Network, err)
		}
		x.session = session
	}

	if x.caller == nil {
		eth, err := ethclient.DialContext(ctx, config.RPCUrl)
		if err != nil {
			x.session.Close()
			return nil, fmt.Errorf("ethereum rpc dial: %w", err)
		}
		x.caller = eth
		x.closers = append(x.closers, eth.Close)
	}

	x.token = clients.NewERC20(common.HexToAddress(config.Payment.TokenAddress), x.caller)
	x.pcfg = pcfg
	x.processor = payment.NewProcessor(pcfg, x.session, x.logger, x.metrics)

	x.logger.Info("scanpay ready", map[string]any{
		"network":  config.Network,
		"provider": config.Provider,
		"token":    config.Payment.TokenAddress,
	})
	return x, nil
}

// Pay runs one payload through parse, validate, build, submit and
// confirmation.
func (x *ScanPay) Pay(ctx context.Context, raw string) (*Result, error) {
	return x.processor.Pay(ctx, raw)
}

// PayFromHistory pays the i-th most recent scanned payload.
func (x *ScanPay) PayFromHistory(ctx context.Context, i int) (*Result, error) {
	raw, err := x.history.Use(i)
	if err != nil {
		return nil, err
	}
	return x.Pay(ctx, raw)
}

// Preview is what a payload would pay, computed without the network.
type Preview struct {
	Raw        string                   `json:"raw"`
	Descriptor *types.PaymentDescriptor `json:"descriptor,omitempty"`
	Merchant   string                   `json:"merchant,omitempty"`
	Amount     string                   `json:"amount,omitempty"`
	Batch      *types.PaymentBatch      `json:"batch,omitempty"`
	Err        error                    `json:"-"`
}

// Process parses, validates and encodes raw without touching the current
// attempt or the network.
func (x *ScanPay) Process(raw string) (*Preview, error) {
	p := &Preview{Raw: raw}

	d, err := payment.Parse(raw)
	if err != nil {
		p.Err = err
		return p, err
	}
	p.Descriptor = d

	v, err := payment.Validate(d)
	if err != nil {
		p.Err = err
		return p, err
	}
	p.Merchant = v.Merchant.Hex()
	p.Amount = v.Amount.String()

	batch, err := payment.EncodeBatch(v, x.pcfg.Decimals, x.pcfg.Target)
	if err != nil {
		p.Err = err
		return p, err
	}
	p.Batch = batch
	return p, nil
}

// ProcessBatch previews payloads concurrently. Per-payload failures are
// reported in Preview.Err; the returned error is only set when ctx ends
// first.
func (x *ScanPay) ProcessBatch(ctx context.Context, payloads []string) ([]*Preview, error) {
	results := make([]*Preview, len(payloads))

	type previewResult struct {
		index   int
		preview *Preview
	}
	resultChan := make(chan previewResult, len(payloads))

	for i, raw := range payloads {
		go func(index int, raw string) {
			p, _ := x.Process(raw)
			resultChan <- previewResult{index: index, preview: p}
		}(i, raw)
	}

	for i := 0; i < len(payloads); i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-resultChan:
			results[res.index] = res.preview
		}
	}
	return results, nil
}

// Balance reads the configured token balance of the active account.
func (x *ScanPay) Balance(ctx context.Context) (*types.Balance, error) {
	account, ok := x.session.CurrentAccount()
	if !ok {
		return nil, &types.ScanPayError{Code: types.ErrNoActiveAccount, Message: types.MsgNoActiveAccount}
	}

	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	raw, err := x.token.BalanceOf(ctx, account)
	if err != nil {
		return nil, networkError("failed to read token balance", err)
	}

	decimals := x.config.Payment.TokenDecimals
	if d, err := x.token.Decimals(ctx); err == nil {
		decimals = int(d)
	} else {
		x.logger.Debug("token decimals unavailable, using config", map[string]any{"error": err})
	}

	symbol, err := x.token.Symbol(ctx)
	if err != nil {
		x.logger.Debug("token symbol unavailable", map[string]any{"error": err})
	}

	return &types.Balance{
		Token:     x.token.Address(),
		Account:   account,
		Symbol:    symbol,
		Decimals:  decimals,
		Raw:       raw,
		Formatted: utils.FormatAmountFromBigInt(raw, decimals),
	}, nil
}

// WatchBalance calls fn with a fresh balance immediately and then every
// interval until ctx is done.
func (x *ScanPay) WatchBalance(ctx context.Context, interval time.Duration, fn func(*types.Balance, error)) error {
	if interval <= 0 {
		interval = DefaultBalanceInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		fn(x.Balance(ctx))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Scan pays every payload src produces, one at a time, recording each in
// the scan history. Before each payload it resumes waiting on a payment a
// previous confirmation timeout left in flight; a resumed receipt is
// reported to handle ahead of the new payload's result. It returns when src
// is exhausted or ctx is done.
func (x *ScanPay) Scan(ctx context.Context, src scanner.Source, handle func(*Result, error)) error {
	report := func(res *Result, err error) {
		if handle != nil {
			handle(res, err)
		}
	}

	return scanner.Run(ctx, src, x.history, func(ctx context.Context, raw string) error {
		if res, err := x.AwaitPending(ctx); res != nil && res.Receipt != nil {
			report(res, err)
		} else if err != nil {
			x.logger.Warn("earlier payment still pending", map[string]any{"error": err})
		}

		res, err := x.Pay(ctx, raw)
		report(res, err)
		return err
	}, x.logger)
}

// AwaitPending resumes confirmation of a payment left in flight by a
// confirmation timeout or cancellation. It returns nil, nil when nothing is
// pending.
func (x *ScanPay) AwaitPending(ctx context.Context) (*Result, error) {
	return x.processor.AwaitPending(ctx)
}

func (x *ScanPay) History() *scanner.History {
	return x.history
}

// Reset abandons the current attempt, releasing an unconfirmed payment.
func (x *ScanPay) Reset() {
	x.processor.Reset()
}

func (x *ScanPay) State() types.AttemptState {
	return x.processor.State()
}

func (x *ScanPay) Account() (common.Address, bool) {
	return x.session.CurrentAccount()
}

func (x *ScanPay) Network() types.Network {
	return x.config.Network
}

// Close closes the session, including one passed with WithSession, and any
// connections New opened.
func (x *ScanPay) Close() {
	x.session.Close()
	for _, c := range x.closers {
		c()
	}
}

// Version information
const (
	Version           = "1.0.0"
	EntryPointVersion = "0.6"
)

// GetVersion returns version information
func GetVersion() map[string]interface{} {
	networks := make([]string, 0, len(types.SupportedNetworks()))
	for _, n := range types.SupportedNetworks() {
		networks = append(networks, n.String())
	}
	return map[string]interface{}{
		"library_version":     Version,
		"entrypoint_version":  EntryPointVersion,
		"supported_networks":  networks,
		"supported_providers": []string{string(types.ProviderEmbedded), string(types.ProviderLocal)},
		"payload_fields":      []string{"ma", "a", "amount", "txn"},
	}
}

func networkError(msg string, err error) error {
	return &types.ScanPayError{Code: types.ErrNetworkError, Message: msg, Err: err}
}
