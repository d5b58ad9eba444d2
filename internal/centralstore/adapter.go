// Package centralstore exposes the authoritative server-side database as a
// small set of typed apply operations. The sync engine is its only caller.
package centralstore

import "context"

// OutcomeCode classifies the result of one adapter call. Errors are never
// raised out of the adapter as control flow; every call returns a tagged
// outcome.
type OutcomeCode int

const (
	// OutcomeOK means the change was applied.
	OutcomeOK OutcomeCode = iota
	// OutcomeTransient covers transport failures, timeouts and server-side
	// overload. Retryable under backoff.
	OutcomeTransient
	// OutcomePermanent covers schema violations, referential integrity
	// failures and unknown targets. Terminal.
	OutcomePermanent
)

// String returns a string representation of the outcome code
func (c OutcomeCode) String() string {
	switch c {
	case OutcomeOK:
		return "ok"
	case OutcomeTransient:
		return "transient"
	case OutcomePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of an adapter call.
type Outcome struct {
	Code OutcomeCode
	Err  error // detail for non-OK outcomes, may be nil
}

// OK reports whether the call succeeded.
func (o Outcome) OK() bool { return o.Code == OutcomeOK }

func ok() Outcome                 { return Outcome{Code: OutcomeOK} }
func transient(err error) Outcome { return Outcome{Code: OutcomeTransient, Err: err} }
func permanent(err error) Outcome { return Outcome{Code: OutcomePermanent, Err: err} }

// Adapter applies queued operations to the central store.
type Adapter interface {
	ApplyInsert(ctx context.Context, target string, payload map[string]string) Outcome
	ApplyUpdate(ctx context.Context, target, key string, payload map[string]string) Outcome
	ApplyDelete(ctx context.Context, target, key string) Outcome
	// Ping tests reachability with a bounded timeout. Used by the
	// connectivity probe.
	Ping(ctx context.Context) error
}
