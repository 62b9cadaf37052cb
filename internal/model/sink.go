package model

// Sink receives finished alerts. Deliver must not block the caller for
// long and never reports failure back; implementations log and count.
type Sink interface {
	Deliver(alert *Alert)
}

// PacketSource feeds packets into the pipeline. Run returns when the source
// is exhausted, fails, or stop is closed. offer returns false when the
// packet was not accepted.
type PacketSource interface {
	Run(stop <-chan struct{}, offer func(*PacketInfo) bool) error
}
