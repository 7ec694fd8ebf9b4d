// Package sim provides the core of the process-scheduler simulator.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - clock.go: Timestamp arithmetic and the logical clock the coordinator advances
//   - worker.go: the worker's deadline state machine (starting → looping → terminating)
//   - coordinator.go: the scheduling loop: advance, admit, exchange, snapshot
//
// # Architecture
//
// The coordinator owns the LogicalClock and the ProcessTable. Workers never share
// memory with it: each receives clock snapshots over its SyncChannel mailbox and
// answers every tick with exactly one reply. Worker units are started through the
// Launcher interface; implementations:
//   - GoroutineLauncher (launcher.go): one goroutine per worker, synthetic PIDs
//   - sim/proc/: one OS process per worker, JSON lines over stdin/stdout
//
// Supporting sub-packages:
//   - sim/trace/: trace records, the in-memory collector and the text-log sink
//   - sim/telemetry/: OpenTelemetry spans around runs and admissions
//
// # Determinism
//
// Lifetimes are drawn from PartitionedRNG, seeded by the run's SimulationKey.
// Workers emit their trace record before replying and launchers return only after
// the startup record is written, so a given seed yields the same trace on every run.
package sim
