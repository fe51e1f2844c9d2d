package match

import "slices"

// SearchState represents one musician-search lifecycle state.
type SearchState string

const (
	Idle       SearchState = "idle"
	Searching  SearchState = "searching"
	Found      SearchState = "found"
	NotFound   SearchState = "not_found"
	Cancelled  SearchState = "cancelled"
	StateError SearchState = "error"
)

// validTransitions defines allowed search state transitions. found and
// cancelled are fully terminal; not_found and error accept only an explicit
// user retry back to searching.
var validTransitions = map[SearchState][]SearchState{
	Idle:       {Searching, Cancelled},
	Searching:  {Found, NotFound, Cancelled, StateError},
	NotFound:   {Searching},
	StateError: {Searching},
	Found:      {},
	Cancelled:  {},
}

// Terminal reports whether a state accepts no further server events.
func Terminal(s SearchState) bool {
	switch s {
	case Found, NotFound, Cancelled, StateError:
		return true
	}
	return false
}

func canTransition(from, to SearchState) bool {
	return slices.Contains(validTransitions[from], to)
}
