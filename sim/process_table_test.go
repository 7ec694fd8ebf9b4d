package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessTable_Admit_LowestFreeSlot(t *testing.T) {
	// GIVEN a table with slots 0..2 filled
	pt := NewProcessTable(4)
	for pid := 1; pid <= 3; pid++ {
		slot, err := pt.Admit(WorkerHandle{PID: pid}, Timestamp{})
		require.NoError(t, err)
		assert.Equal(t, pid-1, slot)
	}

	// WHEN slot 1 is released and a new worker admitted
	released := pt.Release(1)
	assert.Equal(t, WorkerHandle{PID: 2}, released.Worker)
	slot, err := pt.Admit(WorkerHandle{PID: 9}, Timestamp{Seconds: 4})

	// THEN the freed slot is reused
	require.NoError(t, err)
	assert.Equal(t, 1, slot)
	assert.Equal(t, []int{0, 1, 2}, pt.OccupiedSlots())
	assert.Equal(t, 3, pt.Occupied())
	assert.Equal(t, 4, pt.Len())
	assert.Equal(t, Timestamp{Seconds: 4}, pt.Entry(1).AdmittedAt)
}

func TestProcessTable_Admit_CapacityExceeded(t *testing.T) {
	// GIVEN a full table
	pt := NewProcessTable(2)
	_, _ = pt.Admit(WorkerHandle{PID: 1}, Timestamp{})
	_, _ = pt.Admit(WorkerHandle{PID: 2}, Timestamp{})

	// WHEN another worker is admitted
	slot, err := pt.Admit(WorkerHandle{PID: 3}, Timestamp{})

	// THEN it fails without disturbing the table
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, -1, slot)
	assert.Equal(t, 2, pt.Occupied())
}

func TestProcessTable_RecordInteraction(t *testing.T) {
	pt := NewProcessTable(DefaultTableCapacity)
	slot, _ := pt.Admit(WorkerHandle{PID: 5}, Timestamp{})
	pt.RecordInteraction(slot)
	pt.RecordInteraction(slot)

	entry := pt.Release(slot)
	assert.Equal(t, 2, entry.Interactions)
	assert.False(t, pt.Entry(slot).Occupied)
	assert.Equal(t, 0, pt.Entry(slot).Interactions, "released slot is zeroed")
}

func TestProcessTable_LogicErrorsPanic(t *testing.T) {
	pt := NewProcessTable(3)
	assert.Panics(t, func() { pt.Release(0) }, "release of free slot")
	assert.Panics(t, func() { pt.RecordInteraction(1) }, "interaction on free slot")
	assert.Panics(t, func() { pt.Release(3) }, "slot out of range")
	assert.Panics(t, func() { pt.Release(-1) }, "negative slot")
	assert.Panics(t, func() { NewProcessTable(0) }, "zero capacity")
}

func TestProcessTable_SlotOf(t *testing.T) {
	pt := NewProcessTable(3)
	_, _ = pt.Admit(WorkerHandle{PID: 10}, Timestamp{})
	_, _ = pt.Admit(WorkerHandle{PID: 11}, Timestamp{})

	slot, ok := pt.slotOf(WorkerHandle{PID: 11})
	assert.True(t, ok)
	assert.Equal(t, 1, slot)

	_, ok = pt.slotOf(WorkerHandle{PID: 12})
	assert.False(t, ok)
}

func TestProcessTable_Rows_IncludesFreeSlots(t *testing.T) {
	// GIVEN a three-slot table with only slot 1 occupied
	pt := NewProcessTable(3)
	_, _ = pt.Admit(WorkerHandle{PID: 1}, Timestamp{})
	_, _ = pt.Admit(WorkerHandle{PID: 2}, Timestamp{Seconds: 1, Nanoseconds: 5})
	pt.Release(0)
	pt.RecordInteraction(1)

	// WHEN rendered
	rows := pt.Rows()

	// THEN every slot appears, free ones zeroed
	require.Len(t, rows, 3)
	assert.False(t, rows[0].Occupied)
	assert.Equal(t, 0, rows[0].PID)
	assert.True(t, rows[1].Occupied)
	assert.Equal(t, 2, rows[1].PID)
	assert.Equal(t, int64(1), rows[1].StartSeconds)
	assert.Equal(t, int64(5), rows[1].StartNanoseconds)
	assert.Equal(t, 1, rows[1].MessagesSent)
	assert.Equal(t, 2, rows[2].Slot)
}
