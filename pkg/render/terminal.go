package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/logrusorgru/aurora"

	"github.com/boristopalov/gridplan/pkg/core"
)

// Terminal prints snapshots as character grids: '.' free, '#' obstacle,
// 'G' goal and the agent's index for agents
type Terminal struct {
	out io.Writer
	au  aurora.Aurora
}

func NewTerminal(out io.Writer, colors bool) *Terminal {
	return &Terminal{out: out, au: aurora.NewAurora(colors)}
}

func (t *Terminal) Render(s core.Snapshot) error {
	_, err := io.WriteString(t.out, t.Format(s))
	return err
}

// Format returns the frame for s, one line per grid row plus a step footer
func (t *Terminal) Format(s core.Snapshot) string {
	occupant := make(map[core.Position]int, len(s.AgentIDs))
	for i, id := range s.AgentIDs {
		occupant[s.Agents[id]] = i
	}

	var sb strings.Builder
	for r := 0; r < s.Grid.Height(); r++ {
		for c := 0; c < s.Grid.Width(); c++ {
			p := core.Position{Row: r, Col: c}
			if i, ok := occupant[p]; ok {
				sb.WriteString(t.au.Blue(agentGlyph(i)).String())
				continue
			}
			switch s.Grid.At(p) {
			case core.Obstacle:
				sb.WriteString(t.au.Yellow("#").String())
			case core.Goal:
				sb.WriteString(t.au.Green("G").String())
			default:
				sb.WriteString(t.au.White(".").String())
			}
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "step %d/%d\n", s.Step, s.MaxSteps)
	return sb.String()
}

func agentGlyph(i int) string {
	const glyphs = "0123456789abcdefghijklmnopqrstuvwxyz"
	if i < len(glyphs) {
		return string(glyphs[i])
	}
	return "@"
}
