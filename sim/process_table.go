package sim

import (
	"fmt"

	"github.com/oss-sim/oss-sim/sim/trace"
)

// DefaultTableCapacity is the number of process-table slots.
const DefaultTableCapacity = 20

// ProcessTableEntry is one slot of the ProcessTable.
// When Occupied is false the other fields carry no meaning.
type ProcessTableEntry struct {
	Occupied     bool
	Worker       WorkerHandle
	AdmittedAt   Timestamp
	Interactions int // non-terminal replies received since admission
}

// ProcessTable is a fixed-capacity slot table of live workers.
// Owned by the coordinator; NOT thread-safe.
type ProcessTable struct {
	entries  []ProcessTableEntry
	occupied int
}

// NewProcessTable creates an empty table with the given number of slots.
func NewProcessTable(capacity int) *ProcessTable {
	if capacity <= 0 {
		panic(fmt.Sprintf("process table capacity must be positive, got %d", capacity))
	}
	return &ProcessTable{entries: make([]ProcessTableEntry, capacity)}
}

// Admit places worker in the lowest free slot and returns the slot index.
func (pt *ProcessTable) Admit(worker WorkerHandle, at Timestamp) (int, error) {
	for i := range pt.entries {
		if pt.entries[i].Occupied {
			continue
		}
		pt.entries[i] = ProcessTableEntry{
			Occupied:   true,
			Worker:     worker,
			AdmittedAt: at,
		}
		pt.occupied++
		return i, nil
	}
	return -1, fmt.Errorf("admitting worker %d: %w (%d slots)", worker.PID, ErrCapacityExceeded, len(pt.entries))
}

// RecordInteraction counts one non-terminal reply for the worker in slot.
// Panics if the slot is free.
func (pt *ProcessTable) RecordInteraction(slot int) {
	pt.mustBeOccupied(slot, "record interaction")
	pt.entries[slot].Interactions++
}

// Release frees slot and returns the entry it held. Panics if the slot is already free.
func (pt *ProcessTable) Release(slot int) ProcessTableEntry {
	pt.mustBeOccupied(slot, "release")
	released := pt.entries[slot]
	pt.entries[slot] = ProcessTableEntry{}
	pt.occupied--
	return released
}

// OccupiedSlots returns the indices of occupied slots in ascending order.
// The result is a snapshot; later admissions or releases do not change it.
func (pt *ProcessTable) OccupiedSlots() []int {
	slots := make([]int, 0, pt.occupied)
	for i, e := range pt.entries {
		if e.Occupied {
			slots = append(slots, i)
		}
	}
	return slots
}

// Entry returns a copy of the entry at slot.
func (pt *ProcessTable) Entry(slot int) ProcessTableEntry {
	return pt.entries[slot]
}

// slotOf finds the slot holding worker.
func (pt *ProcessTable) slotOf(worker WorkerHandle) (int, bool) {
	for i, e := range pt.entries {
		if e.Occupied && e.Worker == worker {
			return i, true
		}
	}
	return -1, false
}

// Len returns the capacity of the table.
func (pt *ProcessTable) Len() int { return len(pt.entries) }

// Occupied returns the number of occupied slots.
func (pt *ProcessTable) Occupied() int { return pt.occupied }

// Rows renders every slot, free ones included, for a trace snapshot.
func (pt *ProcessTable) Rows() []trace.TableRow {
	rows := make([]trace.TableRow, len(pt.entries))
	for i, e := range pt.entries {
		rows[i] = trace.TableRow{Slot: i}
		if !e.Occupied {
			continue
		}
		rows[i].Occupied = true
		rows[i].PID = e.Worker.PID
		rows[i].StartSeconds = e.AdmittedAt.Seconds
		rows[i].StartNanoseconds = e.AdmittedAt.Nanoseconds
		rows[i].MessagesSent = e.Interactions
	}
	return rows
}

func (pt *ProcessTable) mustBeOccupied(slot int, op string) {
	if slot < 0 || slot >= len(pt.entries) {
		panic(fmt.Sprintf("process table: %s: slot %d out of range [0,%d)", op, slot, len(pt.entries)))
	}
	if !pt.entries[slot].Occupied {
		panic(fmt.Sprintf("process table: %s: slot %d is free", op, slot))
	}
}
