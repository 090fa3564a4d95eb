package planner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/boristopalov/gridplan/pkg/core"
)

// EncodeSummary renders a short textual state description for the planner:
//
//	Grid size 11x11. Goal at (3, 7). agent_0 at (0, 1). agent_1 at (9, 9). Obstacles: 21. Step 4/200.
func EncodeSummary(s core.Snapshot) string {
	parts := make([]string, 0, len(s.AgentIDs)+2)
	parts = append(parts, fmt.Sprintf("Grid size %dx%d. Goal at %v.", s.Grid.Height(), s.Grid.Width(), s.Goal))
	for _, id := range s.AgentIDs {
		parts = append(parts, fmt.Sprintf("%s at %v.", id, s.Agents[id]))
	}
	parts = append(parts, fmt.Sprintf("Obstacles: %d. Step %d/%d.", s.Grid.Count(core.Obstacle), s.Step, s.MaxSteps))
	return strings.Join(parts, " ")
}

var (
	goalPattern  = regexp.MustCompile(`Goal at \((\d+), (\d+)\)`)
	agentPattern = regexp.MustCompile(`(\S+) at \((\d+), (\d+)\)\.`)
)

// SummaryState is what can be recovered from an encoded summary
type SummaryState struct {
	Goal     core.Position
	AgentIDs []string
	Agents   map[string]core.Position
}

// ParseSummary reads the goal and agent positions back out of EncodeSummary output
func ParseSummary(summary string) (SummaryState, error) {
	state := SummaryState{Agents: make(map[string]core.Position)}
	m := goalPattern.FindStringSubmatch(summary)
	if m == nil {
		return state, fmt.Errorf("no goal in summary %q", summary)
	}
	state.Goal = core.Position{Row: atoi(m[1]), Col: atoi(m[2])}

	for _, am := range agentPattern.FindAllStringSubmatch(summary, -1) {
		if am[1] == "Goal" {
			continue
		}
		state.AgentIDs = append(state.AgentIDs, am[1])
		state.Agents[am[1]] = core.Position{Row: atoi(am[2]), Col: atoi(am[3])}
	}
	return state, nil
}

// atoi is only fed \d+ matches
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
