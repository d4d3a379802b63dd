package choreo

import "fmt"

// Site is an instrumented call site.
type Site int

const (
	// SiteEntry is the entry of the algorithm of interest.
	SiteEntry Site = iota
	// SiteSwap is the element swap primitive.
	SiteSwap
	// SiteMoveConstruct is the element move constructor.
	SiteMoveConstruct
	// SiteMoveAssign is the element move assignment operator.
	SiteMoveAssign
)

// Sites lists every instrumented site in placement order.
var Sites = []Site{SiteEntry, SiteSwap, SiteMoveConstruct, SiteMoveAssign}

// moveSites are the sites muted while a swap call is in progress.
var moveSites = []Site{SiteMoveConstruct, SiteMoveAssign}

// String returns the site's configuration name.
func (s Site) String() string {
	switch s {
	case SiteEntry:
		return "entry"
	case SiteSwap:
		return "swap"
	case SiteMoveConstruct:
		return "move_construct"
	case SiteMoveAssign:
		return "move_assign"
	default:
		return fmt.Sprintf("site(%d)", int(s))
	}
}

// State is the choreographer's lifecycle state.
type State int

const (
	// StateArmed waits for the algorithm entry.
	StateArmed State = iota
	// StateRunning observes swaps and moves.
	StateRunning
	// StateFinished means the algorithm returned.
	StateFinished
	// StateAborted means a protocol violation ended observation.
	StateAborted
)

// String returns a lower-case name for the state.
func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further records will be produced.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateAborted
}
