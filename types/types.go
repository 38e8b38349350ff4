package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// DefaultPaymentKind is used when a payload carries no txn label.
const DefaultPaymentKind = "payment"

// PaymentDescriptor is the parsed form of a scanned or typed payment payload.
// Nothing in it has been validated yet.
type PaymentDescriptor struct {
	MerchantAddress string `json:"ma" validate:"evmaddr"`
	Amount          string `json:"a" validate:"posamount"`
	PaymentKind     string `json:"txn"`
}

// ValidatedPayment is a descriptor whose merchant address and amount passed
// validation. Only payment.Validate produces one.
type ValidatedPayment struct {
	Descriptor PaymentDescriptor
	Merchant   common.Address
	Amount     decimal.Decimal
}

// Call is one on-chain invocation. It is immutable: accessors return copies.
type Call struct {
	to    common.Address
	value *big.Int
	data  []byte
}

// NewCall builds a Call, copying value and data.
func NewCall(to common.Address, value *big.Int, data []byte) Call {
	v := new(big.Int)
	if value != nil {
		v.Set(value)
	}
	return Call{
		to:    to,
		value: v,
		data:  common.CopyBytes(data),
	}
}

func (c Call) To() common.Address { return c.to }

func (c Call) Value() *big.Int {
	if c.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(c.value)
}

func (c Call) Data() []byte { return common.CopyBytes(c.data) }

// Selector returns the 4-byte function selector of the call data.
func (c Call) Selector() []byte {
	if len(c.data) < 4 {
		return nil
	}
	return common.CopyBytes(c.data[:4])
}

// Equal reports whether two calls encode the same invocation.
func (c Call) Equal(o Call) bool {
	return c.to == o.to && c.Value().Cmp(o.Value()) == 0 && string(c.data) == string(o.data)
}

func (c Call) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		To    common.Address `json:"to"`
		Value *hexutil.Big   `json:"value"`
		Data  hexutil.Bytes  `json:"data"`
	}{c.to, (*hexutil.Big)(c.Value()), c.data})
}

// PaymentBatch is the ordered approve + pay pair submitted as one operation.
type PaymentBatch struct {
	Calls      []Call   `json:"calls"`
	AmountBase *big.Int `json:"amountBase"`
	Display    string   `json:"display"`
	Decimals   int      `json:"decimals"`
}

// Approve returns the allowance call, always first in the batch.
func (b *PaymentBatch) Approve() Call { return b.Calls[0] }

// Pay returns the payment call, always second in the batch.
func (b *PaymentBatch) Pay() Call { return b.Calls[1] }

// Equal reports structural equality of two batches.
func (b *PaymentBatch) Equal(o *PaymentBatch) bool {
	if b == nil || o == nil {
		return b == o
	}
	if len(b.Calls) != len(o.Calls) || b.Display != o.Display || b.Decimals != o.Decimals {
		return false
	}
	if b.AmountBase.Cmp(o.AmountBase) != 0 {
		return false
	}
	for i := range b.Calls {
		if !b.Calls[i].Equal(o.Calls[i]) {
			return false
		}
	}
	return true
}

// HandleKind tells which relay produced an OperationHandle.
type HandleKind string

const (
	HandleUserOperation HandleKind = "userop"
	HandleTransaction   HandleKind = "tx"
)

// OperationHandle identifies a batch accepted for relay and not yet confirmed.
type OperationHandle struct {
	ID          string         `json:"id"`
	Kind        HandleKind     `json:"kind"`
	Account     common.Address `json:"account"`
	Network     Network        `json:"network"`
	SubmittedAt time.Time      `json:"submittedAt"`
}

// Receipt is the terminal state of a relayed operation.
type Receipt struct {
	OperationID string `json:"operationId"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	Success     bool   `json:"success"`
	Reason      string `json:"reason,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

// Balance is a token balance as shown to the user.
type Balance struct {
	Token     common.Address `json:"token"`
	Account   common.Address `json:"account"`
	Symbol    string         `json:"symbol"`
	Decimals  int            `json:"decimals"`
	Raw       *big.Int       `json:"raw"`
	Formatted string         `json:"formatted"`
}

// AttemptState is the lifecycle position of one payment attempt.
type AttemptState string

const (
	StateIdle       AttemptState = "idle"
	StateParsed     AttemptState = "parsed"
	StateValidated  AttemptState = "validated"
	StateBatchBuilt AttemptState = "batch_built"
	StateSubmitted  AttemptState = "submitted"
	StateConfirmed  AttemptState = "confirmed"
)

// PaymentConfig describes the token and payment contract a batch targets.
type PaymentConfig struct {
	TokenAddress    string `json:"tokenAddress" mapstructure:"token_address" validate:"required,eth_addr"`
	TokenDecimals   int    `json:"tokenDecimals" mapstructure:"token_decimals" validate:"min=0,max=77"`
	PaymentContract string `json:"paymentContract" mapstructure:"payment_contract" validate:"required,eth_addr"`
	// PaymentID is the bytes32 identifier passed to pay(), hex encoded.
	PaymentID   string `json:"paymentId" mapstructure:"payment_id" validate:"required"`
	ExplorerURL string `json:"explorerUrl,omitempty" mapstructure:"explorer_url" validate:"omitempty,url"`

	PollInterval        time.Duration `json:"pollInterval,omitempty" mapstructure:"poll_interval"`
	ConfirmationTimeout time.Duration `json:"confirmationTimeout,omitempty" mapstructure:"confirmation_timeout"`
}

// ScanPayConfig contains global configuration for a ScanPay instance
type ScanPayConfig struct {
	Network  Network      `json:"network" mapstructure:"network" validate:"required"`
	Provider ProviderKind `json:"provider" mapstructure:"provider" validate:"required,oneof=embedded local"`

	RPCUrl       string `json:"rpcUrl" mapstructure:"rpc_url" validate:"required,url"`
	BundlerURL   string `json:"bundlerUrl,omitempty" mapstructure:"bundler_url" validate:"omitempty,url"`
	PaymasterURL string `json:"paymasterUrl,omitempty" mapstructure:"paymaster_url" validate:"omitempty,url"`

	EntryPoint     string `json:"entryPoint,omitempty" mapstructure:"entry_point" validate:"omitempty,eth_addr"`
	AccountAddress string `json:"accountAddress,omitempty" mapstructure:"account_address" validate:"omitempty,eth_addr"`
	SignerKey      string `json:"signerKey,omitempty" mapstructure:"signer_key"`

	FallbackGasLimit uint64 `json:"fallbackGasLimit,omitempty" mapstructure:"fallback_gas_limit"`

	Payment PaymentConfig `json:"payment" mapstructure:"payment"`

	DefaultTimeout time.Duration `json:"defaultTimeout,omitempty" mapstructure:"default_timeout"`
	LogLevel       string        `json:"logLevel,omitempty" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat      string        `json:"logFormat,omitempty" mapstructure:"log_format" validate:"omitempty,oneof=json console"`
	EnableMetrics  bool          `json:"enableMetrics,omitempty" mapstructure:"enable_metrics"`
	MetricsAddr    string        `json:"metricsAddr,omitempty" mapstructure:"metrics_addr"`
}

// Validate checks the cross-field rules struct tags cannot express.
func (c *ScanPayConfig) Validate() error {
	if !c.Network.IsSupported() {
		return &ScanPayError{
			Code:    ErrUnsupportedNetwork,
			Message: fmt.Sprintf("unsupported network: %s", c.Network),
		}
	}

	if c.Provider == ProviderEmbedded {
		if c.BundlerURL == "" {
			return configError("bundlerUrl is required for the embedded provider")
		}
		if c.EntryPoint == "" {
			return configError("entryPoint is required for the embedded provider")
		}
		if c.AccountAddress == "" {
			return configError("accountAddress is required for the embedded provider")
		}
	}

	if c.Payment.PollInterval < 0 || c.Payment.ConfirmationTimeout < 0 {
		return configError("payment poll interval and confirmation timeout cannot be negative")
	}

	return nil
}

// ExplorerBase returns the configured explorer, falling back to the network default.
func (c *ScanPayConfig) ExplorerBase() string {
	if c.Payment.ExplorerURL != "" {
		return c.Payment.ExplorerURL
	}
	return c.Network.DefaultExplorerURL()
}

func configError(msg string) error {
	return &ScanPayError{Code: ErrConfigError, Message: msg}
}
