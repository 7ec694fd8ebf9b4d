package trace

// TraceSummary aggregates statistics from a set of records.
type TraceSummary struct {
	TotalRecords  int
	ByKind        map[Kind]int
	Workers       int // distinct workers that emitted a startup record
	Terminations  int
	Exchanges     int // coordinator receive records
	MaxIterations int // highest iteration count reported in a terminating record
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		ByKind: make(map[Kind]int),
	}
	if st == nil {
		return summary
	}

	workers := make(map[int]bool)
	for _, r := range st.Records() {
		summary.TotalRecords++
		summary.ByKind[r.Kind]++
		switch r.Kind {
		case KindStartup:
			workers[r.Worker] = true
		case KindTerminating:
			summary.Terminations++
			if r.Extra.Iterations > summary.MaxIterations {
				summary.MaxIterations = r.Extra.Iterations
			}
		case KindReceive:
			summary.Exchanges++
		}
	}
	summary.Workers = len(workers)

	return summary
}
