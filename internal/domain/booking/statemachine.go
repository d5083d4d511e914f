package booking

import "errors"

// Action is a lifecycle action applied to a ride request
type Action string

const (
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
	ActionCancel   Action = "cancel"
	ActionRate     Action = "rate"
)

// ErrInvalidTransition is returned when an action is attempted from a
// state that does not allow it. No side effects run in that case.
var ErrInvalidTransition = errors.New("invalid request state transition")

// transitions maps each action to its allowed from-states and the
// resulting state. Rate keeps the request in checked_out; it only
// attaches a rating.
var transitions = map[Action]struct {
	from map[Status]bool
	to   Status
}{
	ActionAccept:   {from: map[Status]bool{StatusWaiting: true}, to: StatusAccepted},
	ActionReject:   {from: map[Status]bool{StatusWaiting: true}, to: StatusRejected},
	ActionCheckIn:  {from: map[Status]bool{StatusAccepted: true}, to: StatusCheckedIn},
	ActionCheckOut: {from: map[Status]bool{StatusCheckedIn: true}, to: StatusCheckedOut},
	ActionCancel: {from: map[Status]bool{
		StatusWaiting:   true,
		StatusAccepted:  true,
		StatusCheckedIn: true,
	}, to: StatusCancelled},
	ActionRate: {from: map[Status]bool{StatusCheckedOut: true}, to: StatusCheckedOut},
}

// Next computes the state an action leads to from the given state, or
// ErrInvalidTransition when the action is not allowed there.
func Next(action Action, from Status) (Status, error) {
	t, ok := transitions[action]
	if !ok {
		return "", ErrInvalidTransition
	}
	if !t.from[from] {
		return "", ErrInvalidTransition
	}
	return t.to, nil
}

// CanTransition reports whether an action is legal from a state
func CanTransition(action Action, from Status) bool {
	_, err := Next(action, from)
	return err == nil
}

// ReachableFrom returns the set of states directly reachable from a
// state through any action. Terminal states return an empty slice.
func ReachableFrom(from Status) []Status {
	seen := make(map[Status]bool)
	var out []Status
	for action, t := range transitions {
		if !t.from[from] {
			continue
		}
		if action == ActionRate {
			// rate does not move the state
			continue
		}
		if !seen[t.to] {
			seen[t.to] = true
			out = append(out, t.to)
		}
	}
	return out
}
