package render

import (
	"bytes"
	"image/gif"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boristopalov/gridplan/pkg/core"
)

func snapshot(t *testing.T) core.Snapshot {
	t.Helper()
	grid, err := core.ParseGrid(
		"..#",
		"..G",
	)
	require.NoError(t, err)
	return core.Snapshot{
		Grid:     grid,
		Goal:     core.Position{Row: 1, Col: 2},
		AgentIDs: []string{"agent_0", "agent_1"},
		Agents: map[string]core.Position{
			"agent_0": {Row: 0, Col: 0},
			"agent_1": {Row: 1, Col: 1},
		},
		Step:     3,
		MaxSteps: 10,
	}
}

func TestFrame(t *testing.T) {
	img := Frame(snapshot(t), 4)

	assert.Equal(t, 12, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())
	assert.Equal(t, agentIndex, img.ColorIndexAt(1, 1))
	assert.Equal(t, freeIndex, img.ColorIndexAt(5, 1))
	assert.Equal(t, obstacleIndex, img.ColorIndexAt(9, 3))
	assert.Equal(t, goalIndex, img.ColorIndexAt(11, 7))
	assert.Equal(t, agentIndex, img.ColorIndexAt(4, 4))
}

func TestTerminalFormat(t *testing.T) {
	term := NewTerminal(nil, false)

	assert.Equal(t, "0.#\n.1G\nstep 3/10\n", term.Format(snapshot(t)))
}

func TestRecorderAndGIF(t *testing.T) {
	var out bytes.Buffer
	rec := NewRecorder(2, NewTerminal(&out, false))
	snap := snapshot(t)

	require.NoError(t, rec.Render(snap))
	snap.Agents["agent_0"] = core.Position{Row: 1, Col: 0}
	require.NoError(t, rec.Render(snap))
	assert.Len(t, rec.Frames(), 2)
	assert.Contains(t, out.String(), "01G")

	path := filepath.Join(t.TempDir(), "nested", "run.gif")
	require.NoError(t, SaveGIF(path, rec.Frames(), 8))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	anim, err := gif.DecodeAll(f)
	require.NoError(t, err)
	assert.Len(t, anim.Image, 2)
	assert.Equal(t, []int{8, 8}, anim.Delay)

	rec.Reset()
	assert.Empty(t, rec.Frames())
	assert.Error(t, SaveGIF(path, nil, 8))
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")

	require.NoError(t, SavePNG(path, Frame(snapshot(t), 3)))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
