package types

// Status is the request lifecycle state. Completed and Failed are
// absorbing: once reached, no further transition is legal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is absorbing.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the four lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is allowed by the
// lifecycle state machine:
//
//	Pending -> Processing -> {Completed | Failed}
//	Pending -> Failed
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed || next == StatusProcessing
	}
	return false
}

// HTTPCode maps a lifecycle state to the HTTP-shaped integer used by the
// status query: in-flight 201, mined 200, failed 500.
func (s Status) HTTPCode() int {
	switch s {
	case StatusCompleted:
		return 200
	case StatusFailed:
		return 500
	default:
		return 201
	}
}
