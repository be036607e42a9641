package model

import "fmt"

// OutcomeKind classifies a single dependency call.
type OutcomeKind int

// Outcome kinds.
const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeNotFound
	OutcomeUnavailable
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Unavailable reasons.
const (
	ReasonTransport        = "transport"
	ReasonDownstreamError  = "downstream-error"
	ReasonUnexpectedStatus = "unexpected-status"
	ReasonCircuitOpen      = "circuit-open"
)

// Outcome is the result of one dependency call. It is never persisted.
type Outcome struct {
	Kind       OutcomeKind
	Dependency string
	// Reason is set for OutcomeUnavailable.
	Reason string
	// Detail carries a truncated downstream body or a client-side error message.
	Detail     string
	StatusCode int
	// Body is the decoded JSON document of a successful Fetch.
	Body any
}

// OK reports whether the dependency answered 200.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeUnavailable:
		return fmt.Sprintf("%s unavailable (%s): %s", o.Dependency, o.Reason, o.Detail)
	case OutcomeError:
		return fmt.Sprintf("%s error: %s", o.Dependency, o.Detail)
	default:
		return fmt.Sprintf("%s %s", o.Dependency, o.Kind)
	}
}
