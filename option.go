package scanpay

import (
	"time"

	"github.com/vitwit/scanpay/clients"
	"github.com/vitwit/scanpay/logger"
	"github.com/vitwit/scanpay/metrics"
)

type Option func(*ScanPay)

func WithLogger(l logger.Logger) Option {
	return func(x *ScanPay) {
		x.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(x *ScanPay) {
		x.metrics = r
	}
}

// WithTimeout bounds session setup and balance reads.
func WithTimeout(t time.Duration) Option {
	return func(x *ScanPay) {
		if t > 0 {
			x.timeout = t
		}
	}
}

// WithSession uses s instead of building one from the config.
func WithSession(s clients.Session) Option {
	return func(x *ScanPay) {
		x.session = s
	}
}

// WithContractCaller reads token state through c instead of dialing RPCUrl.
func WithContractCaller(c clients.ContractCaller) Option {
	return func(x *ScanPay) {
		x.caller = c
	}
}
