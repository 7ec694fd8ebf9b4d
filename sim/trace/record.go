// Package trace provides trace recording for the scheduler simulation.
// It does not import sim/; records are plain data so worker processes can ship them as JSON.
package trace

// Kind names the event a Record describes.
type Kind string

const (
	// KindStartup is emitted once by a worker after computing its deadline.
	KindStartup Kind = "startup"
	// KindIteration is emitted by a worker for every tick that finds its deadline not yet reached.
	KindIteration Kind = "iteration"
	// KindTerminating is emitted by a worker on the tick that reaches its deadline.
	KindTerminating Kind = "terminating"
	// KindTableSnapshot is emitted by the coordinator once per loop iteration.
	KindTableSnapshot Kind = "table"
	// KindSend is emitted by the coordinator before a tick goes out.
	KindSend Kind = "send"
	// KindReceive is emitted by the coordinator after a reply comes back.
	KindReceive Kind = "receive"
)

// validKinds maps accepted kind strings.
var validKinds = map[Kind]bool{
	KindStartup:       true,
	KindIteration:     true,
	KindTerminating:   true,
	KindTableSnapshot: true,
	KindSend:          true,
	KindReceive:       true,
}

// IsValidKind returns true if the given string is a recognized record kind.
func IsValidKind(kind string) bool {
	return validKinds[Kind(kind)]
}

// Record is a single trace line.
type Record struct {
	Kind        Kind  `json:"kind"`
	Worker      int   `json:"worker"` // worker PID; the coordinator's own PID for table snapshots
	Seconds     int64 `json:"seconds"`
	Nanoseconds int64 `json:"nanoseconds"`
	Extra       Extra `json:"extra"`
}

// Extra carries kind-specific fields. Unused fields stay zero.
type Extra struct {
	Parent          int        `json:"parent,omitempty"`
	TermSeconds     int64      `json:"termSeconds,omitempty"`
	TermNanoseconds int64      `json:"termNanoseconds,omitempty"`
	Iterations      int        `json:"iterations,omitempty"`
	Slot            int        `json:"slot,omitempty"`
	Payload         int        `json:"payload,omitempty"`
	Table           []TableRow `json:"table,omitempty"`
}

// TableRow is one process-table slot in a KindTableSnapshot record.
type TableRow struct {
	Slot             int   `json:"slot"`
	Occupied         bool  `json:"occupied"`
	PID              int   `json:"pid"`
	StartSeconds     int64 `json:"startSeconds"`
	StartNanoseconds int64 `json:"startNanoseconds"`
	MessagesSent     int   `json:"messagesSent"`
}
