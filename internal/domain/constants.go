package domain

// Status is the lifecycle state of a generation job
type Status string

// Job status constants
const (
	StatusPending   Status = "PENDING"
	StatusStaging   Status = "STAGING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// IsTerminal reports whether no further transitions are possible from s
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// transitions lists the states reachable from each state
var transitions = map[Status][]Status{
	StatusPending: {StatusStaging, StatusFailed},
	StatusStaging: {StatusRunning, StatusFailed},
	StatusRunning: {StatusSucceeded, StatusFailed},
}

// CanTransition reports whether from -> to is a legal job transition
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
