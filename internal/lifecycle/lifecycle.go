// Package lifecycle models the activity status state machine.
package lifecycle

type Status string

const (
	StatusDraft  Status = "Draft"
	StatusActive Status = "Active"
	StatusVoting Status = "Voting"
	StatusClosed Status = "Closed"
)

// Activity types understood by the core.
const (
	TypeOpenEnded  = "open_ended"
	TypeAssignment = "assignment"
	TypeStocktake  = "stocktake"
)

// transitions is the full table of legal status changes. Active→Active is
// legal on purpose: re-activating an assignment activity triggers prompt
// distribution for groups that joined late.
var transitions = map[Status]map[Status]struct{}{
	StatusDraft:  {StatusActive: {}, StatusClosed: {}},
	StatusActive: {StatusActive: {}, StatusVoting: {}, StatusClosed: {}},
	StatusVoting: {StatusActive: {}, StatusClosed: {}},
	StatusClosed: {},
}

func Valid(status Status) bool {
	_, ok := transitions[status]
	return ok
}

// CanTransition reports whether from→to is a legal status change.
func CanTransition(from, to Status) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// SupportsVoting reports whether an activity of the given type and config can
// enter the Voting stage. Stocktake activities collect choices, never votes.
func SupportsVoting(activityType string, votingEnabled bool) bool {
	if activityType == TypeStocktake {
		return false
	}
	return votingEnabled
}

// AcceptsSubmissions reports whether an activity type takes free-text
// submissions.
func AcceptsSubmissions(activityType string) bool {
	return activityType == TypeOpenEnded || activityType == TypeAssignment
}
