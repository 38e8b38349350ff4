package metrics

import "time"

// Counter and latency names recorded by the payment processor.
const (
	PaymentParsed    = "payment_parsed"
	PaymentRejected  = "payment_rejected"
	PaymentSubmitted = "payment_submitted"
	PaymentConfirmed = "payment_confirmed"
	PaymentFailed    = "payment_failed"

	LatencySubmit  = "submit"
	LatencyConfirm = "confirm"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
