package mutation

// State is the tag of a mutation's position in its save lifecycle.
type State int

const (
	Preparing State = iota
	OptimisticallyApplied
	Saving
	ConflictDetected
	Merging
	Committed
	RolledBack
)

var stateNames = [...]string{
	Preparing:             "preparing",
	OptimisticallyApplied: "optimistically_applied",
	Saving:                "saving",
	ConflictDetected:      "conflict_detected",
	Merging:               "merging",
	Committed:             "committed",
	RolledBack:            "rolled_back",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == Committed || s == RolledBack
}
