package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vitwit/scanpay/clients"
	"github.com/vitwit/scanpay/logger"
	"github.com/vitwit/scanpay/metrics"
	"github.com/vitwit/scanpay/types"
	"github.com/vitwit/scanpay/utils"
)

const DefaultPollInterval = 2 * time.Second

// Config holds what the processor needs beyond the session.
type Config struct {
	Target   Target
	Decimals int

	ExplorerBase string

	PollInterval time.Duration
	// ConfirmationTimeout bounds AwaitConfirmation. Zero leaves the bound
	// to the caller's context.
	ConfirmationTimeout time.Duration
}

// ConfigFromScanPay derives a processor Config from the instance config.
func ConfigFromScanPay(cfg *types.ScanPayConfig) (Config, error) {
	id, err := utils.HexToBytes32(cfg.Payment.PaymentID)
	if err != nil {
		return Config{}, &types.ScanPayError{
			Code:    types.ErrConfigError,
			Message: "invalid payment id",
			Err:     err,
		}
	}

	return Config{
		Target: Target{
			Token:     common.HexToAddress(cfg.Payment.TokenAddress),
			Contract:  common.HexToAddress(cfg.Payment.PaymentContract),
			PaymentID: id,
		},
		Decimals:            cfg.Payment.TokenDecimals,
		ExplorerBase:        cfg.ExplorerBase(),
		PollInterval:        cfg.Payment.PollInterval,
		ConfirmationTimeout: cfg.Payment.ConfirmationTimeout,
	}, nil
}

// Attempt is a snapshot of the current payment attempt.
type Attempt struct {
	ID         string                   `json:"id"`
	State      types.AttemptState       `json:"state"`
	StartedAt  time.Time                `json:"startedAt"`
	Descriptor *types.PaymentDescriptor `json:"descriptor,omitempty"`
	Payment    *types.ValidatedPayment  `json:"-"`
	Batch      *types.PaymentBatch      `json:"batch,omitempty"`
	Handle     *types.OperationHandle   `json:"handle,omitempty"`
	Receipt    *types.Receipt           `json:"receipt,omitempty"`
	Err        error                    `json:"-"`
}

// Result carries every artifact a Pay call produced, including partial
// results when a later stage failed.
type Result struct {
	AttemptID  string
	Descriptor *types.PaymentDescriptor
	Payment    *types.ValidatedPayment
	Batch      *types.PaymentBatch
	Handle     *types.OperationHandle
	Receipt    *types.Receipt
}

// Processor turns raw payloads into confirmed payments. At most one payment
// is in flight: from the moment Submit hands a batch to the session until
// its receipt arrives or Reset is called, further submissions are rejected
// with PAYMENT_IN_FLIGHT.
type Processor struct {
	cfg     Config
	session clients.Session
	log     logger.Logger
	metrics metrics.Recorder

	mu       sync.Mutex
	busy     bool
	gen      uint64
	inFlight *types.OperationHandle
	attempt  Attempt
}

func NewProcessor(cfg Config, session clients.Session, log logger.Logger, rec metrics.Recorder) *Processor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Processor{
		cfg:     cfg,
		session: session,
		log:     logger.OrNoop(log),
		metrics: metrics.OrNoop(rec),
		attempt: Attempt{State: types.StateIdle},
	}
}

// Parse decodes raw and starts a new attempt, unless a payment is in flight.
func (p *Processor) Parse(raw string) (*types.PaymentDescriptor, error) {
	d, legacy, err := parse(raw)

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.busy {
		p.attempt = Attempt{
			ID:        uuid.NewString(),
			State:     types.StateIdle,
			StartedAt: time.Now().UTC(),
		}
	}

	if err != nil {
		p.reject("parse", err)
		return nil, err
	}

	if legacy {
		p.log.Debug("payload used legacy amount field", map[string]any{"attempt": p.attempt.ID})
	}
	p.metrics.IncCounter(metrics.PaymentParsed, p.labels(""))
	p.record(types.StateParsed, func(a *Attempt) { a.Descriptor = d })
	return d, nil
}

func (p *Processor) Validate(d *types.PaymentDescriptor) (*types.ValidatedPayment, error) {
	v, err := Validate(d)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.reject("validate", err)
		return nil, err
	}
	p.record(types.StateValidated, func(a *Attempt) { a.Payment = v })
	return v, nil
}

// BuildBatch encodes the approve + pay calls for v scaled by decimals.
func (p *Processor) BuildBatch(v *types.ValidatedPayment, decimals int) (*types.PaymentBatch, error) {
	batch, err := EncodeBatch(v, decimals, p.cfg.Target)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.reject("encode", err)
		return nil, err
	}
	p.record(types.StateBatchBuilt, func(a *Attempt) { a.Batch = batch })
	return batch, nil
}

// Submit hands batch to the session as one relayed operation. It is not
// retried on failure.
func (p *Processor) Submit(ctx context.Context, batch *types.PaymentBatch) (*types.OperationHandle, error) {
	if batch == nil || len(batch.Calls) != 2 {
		return nil, encodingError(fmt.Errorf("batch must hold approve and pay calls"))
	}

	p.mu.Lock()
	if p.busy {
		err := p.inFlightError()
		p.mu.Unlock()
		p.metrics.IncCounter(metrics.PaymentRejected, p.labels("in_flight"))
		return nil, err
	}

	account, ok := p.session.CurrentAccount()
	if !ok {
		err := &types.ScanPayError{Code: types.ErrNoActiveAccount, Message: types.MsgNoActiveAccount}
		p.reject("no_account", err)
		p.mu.Unlock()
		return nil, err
	}

	if p.attempt.ID == "" {
		p.attempt.ID = uuid.NewString()
		p.attempt.StartedAt = time.Now().UTC()
	}
	p.busy = true
	gen := p.gen
	p.attempt.Batch = batch
	attemptID := p.attempt.ID
	p.mu.Unlock()

	p.log.Info("submitting payment", map[string]any{
		"attempt": attemptID,
		"account": account.Hex(),
		"amount":  batch.Display,
		"network": p.session.Network(),
	})

	start := time.Now()
	handle, err := p.session.Relay(ctx, batch.Calls)
	p.metrics.ObserveLatency(metrics.LatencySubmit, time.Since(start), p.labels(""))

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		serr := &types.ScanPayError{Code: types.ErrSubmission, Message: types.MsgSubmission, Err: err}
		if gen == p.gen {
			p.busy = false
			p.attempt.State = types.StateIdle
			p.attempt.Err = serr
		}
		p.metrics.IncCounter(metrics.PaymentFailed, p.labels("submit"))
		p.log.Error("payment submission failed", map[string]any{"attempt": attemptID, "error": err})
		return nil, serr
	}

	if gen == p.gen {
		p.inFlight = handle
		p.attempt.State = types.StateSubmitted
		p.attempt.Handle = handle
		p.attempt.Err = nil
	}
	p.metrics.IncCounter(metrics.PaymentSubmitted, p.labels(""))
	p.log.Info("payment submitted", map[string]any{
		"attempt": attemptID,
		"handle":  handle.ID,
		"kind":    handle.Kind,
	})
	return handle, nil
}

// AwaitConfirmation polls the session until handle has a receipt, the
// confirmation timeout passes, or ctx is done. Fetch errors are logged and
// polling continues. A timeout or cancellation leaves the payment in
// flight; call Reset to abandon it.
func (p *Processor) AwaitConfirmation(ctx context.Context, handle *types.OperationHandle) (*types.Receipt, error) {
	if handle == nil || handle.ID == "" {
		return nil, &types.ScanPayError{Code: types.ErrSubmission, Message: "no operation handle to confirm"}
	}

	if p.cfg.ConfirmationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ConfirmationTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	start := time.Now()
	for {
		receipt, err := p.session.FetchReceipt(ctx, handle)
		switch {
		case err != nil && ctx.Err() == nil:
			p.log.Warn("receipt lookup failed, retrying", map[string]any{"handle": handle.ID, "error": err})
		case err == nil && receipt != nil:
			p.metrics.ObserveLatency(metrics.LatencyConfirm, time.Since(start), p.labels(""))
			return p.finish(handle, receipt)
		}

		select {
		case <-ctx.Done():
			return nil, p.stopWaiting(ctx, handle)
		case <-ticker.C:
		}
	}
}

func (p *Processor) finish(handle *types.OperationHandle, receipt *types.Receipt) (*types.Receipt, error) {
	if err := utils.ValidateTransactionHash(receipt.TxHash); err != nil {
		p.log.Warn("receipt carries no usable transaction hash", map[string]any{"handle": handle.ID, "error": err})
		receipt.ExplorerURL = ""
	} else {
		receipt.ExplorerURL = utils.ExplorerTxURL(p.cfg.ExplorerBase, receipt.TxHash)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.inFlight != nil && p.inFlight.ID == handle.ID
	if current {
		p.busy = false
		p.inFlight = nil
		p.attempt.Receipt = receipt
	}

	fields := map[string]any{
		"handle":   handle.ID,
		"txHash":   receipt.TxHash,
		"block":    receipt.BlockNumber,
		"explorer": receipt.ExplorerURL,
	}

	if !receipt.Success {
		err := &types.ScanPayError{
			Code:    types.ErrConfirmationFailed,
			Message: types.MsgConfirmationFailed,
			Err:     errors.New(receipt.Reason),
		}
		if current {
			p.attempt.State = types.StateIdle
			p.attempt.Err = err
		}
		p.metrics.IncCounter(metrics.PaymentFailed, p.labels("reverted"))
		fields["reason"] = receipt.Reason
		p.log.Error("payment reverted", fields)
		return receipt, err
	}

	if current {
		p.attempt.State = types.StateConfirmed
		p.attempt.Err = nil
	}
	p.metrics.IncCounter(metrics.PaymentConfirmed, p.labels(""))
	p.log.Info("payment confirmed", fields)
	return receipt, nil
}

func (p *Processor) stopWaiting(ctx context.Context, handle *types.OperationHandle) error {
	var err *types.ScanPayError
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = &types.ScanPayError{Code: types.ErrConfirmationTimeout, Message: types.MsgConfirmationTimeout, Err: ctx.Err()}
		p.metrics.IncCounter(metrics.PaymentFailed, p.labels("timeout"))
	} else {
		err = &types.ScanPayError{Code: types.ErrCanceled, Message: types.MsgCanceled, Err: ctx.Err()}
	}

	p.log.Warn("stopped waiting for confirmation", map[string]any{
		"handle": handle.ID,
		"code":   err.Code,
	})

	p.mu.Lock()
	if p.inFlight != nil && p.inFlight.ID == handle.ID {
		p.attempt.Err = err
	}
	p.mu.Unlock()
	return err
}

// Pay runs the whole pipeline for one payload. The returned Result holds
// whatever was produced before a failure.
func (p *Processor) Pay(ctx context.Context, raw string) (*Result, error) {
	p.mu.Lock()
	if p.busy {
		err := p.inFlightError()
		p.mu.Unlock()
		p.metrics.IncCounter(metrics.PaymentRejected, p.labels("in_flight"))
		return nil, err
	}
	p.mu.Unlock()

	res := &Result{}

	d, err := p.Parse(raw)
	if err != nil {
		return res, err
	}
	res.Descriptor = d
	res.AttemptID = p.Attempt().ID

	v, err := p.Validate(d)
	if err != nil {
		return res, err
	}
	res.Payment = v

	batch, err := p.BuildBatch(v, p.cfg.Decimals)
	if err != nil {
		return res, err
	}
	res.Batch = batch

	handle, err := p.Submit(ctx, batch)
	if err != nil {
		return res, err
	}
	res.Handle = handle

	receipt, err := p.AwaitConfirmation(ctx, handle)
	res.Receipt = receipt
	return res, err
}

// AwaitPending resumes confirmation of a payment left in flight by an
// earlier timeout or cancellation. It returns nil, nil when no submitted
// operation is pending.
func (p *Processor) AwaitPending(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	handle := p.inFlight
	a := p.attempt
	p.mu.Unlock()

	if handle == nil {
		return nil, nil
	}

	p.log.Info("resuming confirmation", map[string]any{"attempt": a.ID, "handle": handle.ID})
	res := &Result{
		AttemptID:  a.ID,
		Descriptor: a.Descriptor,
		Payment:    a.Payment,
		Batch:      a.Batch,
		Handle:     handle,
	}
	receipt, err := p.AwaitConfirmation(ctx, handle)
	res.Receipt = receipt
	return res, err
}

// Reset abandons the current attempt and releases the in-flight slot. The
// relayed operation, if any, is not affected on chain.
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inFlight != nil {
		p.log.Warn("abandoning in-flight payment", map[string]any{"handle": p.inFlight.ID})
	}
	p.gen++
	p.busy = false
	p.inFlight = nil
	p.attempt = Attempt{State: types.StateIdle}
}

func (p *Processor) State() types.AttemptState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempt.State
}

func (p *Processor) Attempt() Attempt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempt
}

// InFlight reports whether a payment is in flight. The handle is nil while
// the relay call is still running.
func (p *Processor) InFlight() (*types.OperationHandle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight, p.busy
}

// record moves the attempt to state. Stages run while a payment is in
// flight leave the pending attempt untouched.
func (p *Processor) record(state types.AttemptState, update func(*Attempt)) {
	if p.busy {
		return
	}
	p.attempt.State = state
	p.attempt.Err = nil
	if update != nil {
		update(&p.attempt)
	}
}

// reject returns the attempt to Idle with err. Callers hold p.mu.
func (p *Processor) reject(stage string, err error) {
	p.metrics.IncCounter(metrics.PaymentRejected, p.labels(stage))
	p.log.Warn("payment rejected", map[string]any{
		"attempt": p.attempt.ID,
		"stage":   stage,
		"error":   err,
	})
	if p.busy {
		return
	}
	p.attempt.State = types.StateIdle
	p.attempt.Err = err
}

func (p *Processor) inFlightError() error {
	id := "pending"
	if p.inFlight != nil {
		id = p.inFlight.ID
	}
	return &types.ScanPayError{
		Code:    types.ErrPaymentInFlight,
		Message: types.MsgPaymentInFlight,
		Err:     fmt.Errorf("pending operation %s", id),
	}
}

func (p *Processor) labels(reason string) map[string]string {
	return map[string]string{
		"network": p.session.Network().String(),
		"reason":  reason,
	}
}
