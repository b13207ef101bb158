package command

import "github.com/louisbranch/duet/internal/services/duet/domain/action"

// Decision represents the pure outcome of handling a command.
type Decision struct {
	Actions    []action.Action
	Rejections []Rejection
}

// Rejection captures a domain-level reason a command was declined.
type Rejection struct {
	Code    string
	Message string
}

// Accept returns a decision that emits the provided actions.
func Accept(actions ...action.Action) Decision {
	return Decision{Actions: append([]action.Action(nil), actions...)}
}

// Reject returns a decision that carries the provided rejections.
func Reject(rejections ...Rejection) Decision {
	return Decision{Rejections: append([]Rejection(nil), rejections...)}
}

// Rejected reports whether the decision declined the command.
func (d Decision) Rejected() bool {
	return len(d.Rejections) > 0
}
