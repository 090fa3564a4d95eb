package planner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/boristopalov/gridplan/pkg/core"
	"github.com/boristopalov/gridplan/pkg/memory"
	"github.com/boristopalov/gridplan/pkg/providers"
)

// ErrMalformedPlan means the model's reply held no usable subgoal JSON
var ErrMalformedPlan = errors.New("malformed plan")

const PLANNER_PROMPT_TEMPLATE = `You are a mission planner for multiple agents in a grid world.
Given the following short environment summary, propose subgoals for each agent.
Output JSON with an array "subgoals", each item: {"agent_id": "agent_0", "goal_type": "goto", "target": [r, c]}.
Rows and columns are zero-based. Choose reachable cells (not obstacles) and prioritize reaching the goal quickly.
%s
Summary:
%s

Return ONLY valid JSON.`

// LLMPlanner asks a language model for per-agent subgoals
type LLMPlanner struct {
	client  providers.Client
	model   string
	memory  *memory.Memory
	history int
}

type PlannerOption func(*LLMPlanner)

func WithModel(model string) PlannerOption {
	return func(p *LLMPlanner) {
		p.model = model
	}
}

// WithHistory includes the last n summary/plan exchanges in each prompt
func WithHistory(n int) PlannerOption {
	return func(p *LLMPlanner) {
		p.history = n
	}
}

func NewLLMPlanner(client providers.Client, opts ...PlannerOption) *LLMPlanner {
	p := &LLMPlanner{
		client: client,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.memory = memory.NewMemory(p.history)
	return p
}

// Plan implements core.SubgoalSource
func (p *LLMPlanner) Plan(ctx context.Context, summary string) ([]core.Subgoal, error) {
	prompt := fmt.Sprintf(PLANNER_PROMPT_TEMPLATE, p.historySection(), summary)

	response, err := p.client.Complete(ctx, p.model, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate plan: %w", err)
	}

	subgoals, err := ParseSubgoals(response)
	if err != nil {
		return nil, err
	}

	if err := p.memory.Store(fmt.Sprintf("Summary: %s\nPlan: %s", summary, formatSubgoals(subgoals))); err != nil {
		log.Printf("failed to store plan in memory: %v", err)
	}
	return subgoals, nil
}

func (p *LLMPlanner) historySection() string {
	recent := p.memory.Recent(p.history)
	if len(recent) == 0 {
		return ""
	}
	return "\nYour most recent plans, oldest first:\n" + strings.Join(recent, "\n") + "\n"
}

// ParseSubgoals extracts {"subgoals": [...]} from a model reply. The whole reply
// is tried first, then the outermost {...} span. Items without an agent id or
// a two-integer target are skipped.
func ParseSubgoals(text string) ([]core.Subgoal, error) {
	doc := strings.TrimSpace(text)
	if !gjson.Valid(doc) {
		start, end := strings.Index(doc, "{"), strings.LastIndex(doc, "}")
		if start < 0 || end <= start || !gjson.Valid(doc[start:end+1]) {
			return nil, fmt.Errorf("%w: no JSON object in %q", ErrMalformedPlan, text)
		}
		doc = doc[start : end+1]
	}

	list := gjson.Get(doc, "subgoals")
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: no subgoals array in %q", ErrMalformedPlan, doc)
	}

	var subgoals []core.Subgoal
	list.ForEach(func(_, item gjson.Result) bool {
		sg, ok := parseSubgoal(item)
		if !ok {
			log.Printf("skipping malformed subgoal %s", item.Raw)
			return true
		}
		subgoals = append(subgoals, sg)
		return true
	})
	return subgoals, nil
}

func parseSubgoal(item gjson.Result) (core.Subgoal, bool) {
	id := item.Get("agent_id").String()
	if id == "" {
		return core.Subgoal{}, false
	}
	target := item.Get("target").Array()
	if len(target) != 2 {
		return core.Subgoal{}, false
	}
	for _, v := range target {
		if v.Type != gjson.Number || v.Num != float64(v.Int()) {
			return core.Subgoal{}, false
		}
	}
	goalType := item.Get("goal_type").String()
	if goalType == "" {
		goalType = "goto"
	}
	return core.Subgoal{
		AgentID:  id,
		GoalType: goalType,
		Target:   core.Position{Row: int(target[0].Int()), Col: int(target[1].Int())},
	}, true
}

func formatSubgoals(subgoals []core.Subgoal) string {
	if len(subgoals) == 0 {
		return "none"
	}
	parts := make([]string, len(subgoals))
	for i, sg := range subgoals {
		parts[i] = fmt.Sprintf("%s -> %v", sg.AgentID, sg.Target)
	}
	return strings.Join(parts, ", ")
}

// GoalPlanner sends every agent in the summary straight to the shared goal.
// It needs no model and is the offline default.
type GoalPlanner struct{}

func (GoalPlanner) Plan(ctx context.Context, summary string) ([]core.Subgoal, error) {
	state, err := ParseSummary(summary)
	if err != nil {
		return nil, err
	}
	subgoals := make([]core.Subgoal, 0, len(state.AgentIDs))
	for _, id := range state.AgentIDs {
		subgoals = append(subgoals, core.Subgoal{AgentID: id, GoalType: "goto", Target: state.Goal})
	}
	return subgoals, nil
}
