package sweep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cellgc/internal/arena"
	"github.com/hupe1980/cellgc/internal/cell"
)

func fill(t *testing.T, a *arena.Arena, n int) []cell.Handle {
	t.Helper()
	hs := make([]cell.Handle, 0, n)
	for i := 0; i < n; i++ {
		h, err := a.Alloc(cell.Int(int64(i)))
		require.NoError(t, err)
		hs = append(hs, h)
	}
	return hs
}

func TestSweep_ReclaimsUnmarked(t *testing.T) {
	a, err := arena.New(cell.ArenaA, 6)
	require.NoError(t, err)

	hs := fill(t, a, 4)
	a.ClearMarks()
	a.Mark(hs[0].Slot())
	a.Mark(hs[2].Slot())

	res := Sweep(a)

	assert.Equal(t, cell.ArenaA, res.Arena)
	assert.Equal(t, 6, res.Scanned)
	assert.Equal(t, 2, res.Reclaimed)
	assert.Equal(t, 2, res.Survivors)
	assert.Equal(t, 4, a.FreeSlots())

	assert.True(t, a.Valid(hs[0]))
	assert.False(t, a.Valid(hs[1]))
	assert.True(t, a.Valid(hs[2]))
	assert.False(t, a.Valid(hs[3]))
}

func TestSweep_LeavesFreeSlotsAlone(t *testing.T) {
	a, err := arena.New(cell.ArenaB, 4)
	require.NoError(t, err)

	a.ClearMarks()
	// A second sweep over an untouched arena must not double free.
	assert.NotPanics(t, func() {
		Sweep(a)
		Sweep(a)
	})
	assert.Equal(t, 4, a.FreeSlots())
}

func TestSweeper_Step(t *testing.T) {
	a, err := arena.New(cell.ArenaA, 10)
	require.NoError(t, err)
	fill(t, a, 10)
	a.ClearMarks()

	s := New()
	s.Start(a)
	assert.True(t, s.Running())

	assert.False(t, s.Step(3))
	assert.Equal(t, 3, s.Result().Reclaimed)
	assert.False(t, s.Step(3))
	assert.False(t, s.Step(3))
	assert.True(t, s.Step(3))
	assert.False(t, s.Running())
	assert.Equal(t, 10, s.Result().Reclaimed)

	// Stepping a finished sweeper is a no-op.
	assert.True(t, s.Step(3))
}
