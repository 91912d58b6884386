package extract

// State is the position of an extraction run in its list ↔ detail cycle.
type State int

const (
	StateStart State = iota
	StateListLoaded
	StateRowIterating
	StateDetailOpen
	StateDetailParsed
	StateBackToList
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateListLoaded:
		return "list_loaded"
	case StateRowIterating:
		return "row_iterating"
	case StateDetailOpen:
		return "detail_open"
	case StateDetailParsed:
		return "detail_parsed"
	case StateBackToList:
		return "back_to_list"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
