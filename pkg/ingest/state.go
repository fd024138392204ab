// Package ingest runs one fetch-write-track pass over a query window
package ingest

// State is a step of the ingest state machine
type State int

// Planning → Fetching ⇄ Writing → Finalizing → Done, or Failed from any step before Done
const (
	StatePlanning State = iota
	StateFetching
	StateWriting
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePlanning:
		return "planning"
	case StateFetching:
		return "fetching"
	case StateWriting:
		return "writing"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
