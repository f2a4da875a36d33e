package feed

// State is a step of a single feed selection.
//
//	AwaitingSample -> CandidatesDrawn -> Evaluated -> Selected
//	AwaitingSample -> Exhausted
//	CandidatesDrawn -> NoCandidates
type State int

const (
	AwaitingSample State = iota
	CandidatesDrawn
	Evaluated
	Selected
	Exhausted
	NoCandidates
)

func (s State) String() string {
	switch s {
	case AwaitingSample:
		return "awaiting_sample"
	case CandidatesDrawn:
		return "candidates_drawn"
	case Evaluated:
		return "evaluated"
	case Selected:
		return "selected"
	case Exhausted:
		return "exhausted"
	case NoCandidates:
		return "no_candidates"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Selected || s == Exhausted || s == NoCandidates
}
