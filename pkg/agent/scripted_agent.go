package agent

import (
	"fmt"
	"log"

	"github.com/boristopalov/gridplan/pkg/core"
	"github.com/boristopalov/gridplan/pkg/memory"
	"github.com/boristopalov/gridplan/pkg/messaging"
	"github.com/boristopalov/gridplan/pkg/pathfinding"
)

// Locator is the read-only view of the environment a controller needs
type Locator interface {
	Grid() core.Grid
	Position(id string) (core.Position, bool)
}

// ScriptedAgent follows an A* route to its current subgoal, one cell per tick.
// It assumes every move succeeds and never re-plans on its own.
type ScriptedAgent struct {
	id            string
	env           Locator
	route         []core.Position
	target        *core.Position
	memory        *memory.Memory
	inbox         chan messaging.Message
	messageBroker messaging.Broker
}

type AgentParams struct {
	AgentID       string
	MessageBroker messaging.Broker
	InboxSize     int
	MemorySize    int
}

type AgentOption func(*AgentParams)

func WithAgentId(id string) AgentOption {
	return func(p *AgentParams) {
		p.AgentID = id
	}
}

// WithMessageBroker subscribes the agent's inbox so planners can publish subgoals to it
func WithMessageBroker(b messaging.Broker) AgentOption {
	return func(p *AgentParams) {
		p.MessageBroker = b
	}
}

func WithInboxSize(n int) AgentOption {
	return func(p *AgentParams) {
		p.InboxSize = n
	}
}

// WithMemorySize bounds how many subgoal assignments the agent remembers
func WithMemorySize(n int) AgentOption {
	return func(p *AgentParams) {
		p.MemorySize = n
	}
}

func defaultAgentParams() *AgentParams {
	return &AgentParams{
		AgentID:    "agent_0",
		InboxSize:  16,
		MemorySize: 32,
	}
}

// NewScriptedAgent creates a controller for one agent slot of env
func NewScriptedAgent(env Locator, opts ...AgentOption) (*ScriptedAgent, error) {
	params := defaultAgentParams()
	for _, opt := range opts {
		opt(params)
	}
	if _, ok := env.Position(params.AgentID); !ok {
		return nil, fmt.Errorf("agent %s is not in the environment", params.AgentID)
	}

	agent := &ScriptedAgent{
		id:            params.AgentID,
		env:           env,
		memory:        memory.NewMemory(params.MemorySize),
		messageBroker: params.MessageBroker,
	}

	if agent.messageBroker != nil {
		agent.inbox = make(chan messaging.Message, params.InboxSize)
		if err := agent.messageBroker.Subscribe(agent.id, agent.inbox); err != nil {
			return nil, fmt.Errorf("failed to subscribe %s: %w", agent.id, err)
		}
	}

	return agent, nil
}

func (a *ScriptedAgent) GetID() string {
	return a.id
}

// GetMemory returns the agent's log of subgoal assignments
func (a *ScriptedAgent) GetMemory() *memory.Memory {
	return a.memory
}

// AssignSubgoal replaces the current route with a path to target and reports
// whether there is anything left to walk
func (a *ScriptedAgent) AssignSubgoal(target core.Position) bool {
	start, _ := a.env.Position(a.id)
	path := pathfinding.FindPath(a.env.Grid(), start, target)
	if len(path) > 1 {
		a.route = path[1:]
	} else {
		a.route = nil
	}
	t := target
	a.target = &t

	if err := a.memory.Store(fmt.Sprintf("subgoal %v from %v: %d steps", target, start, len(a.route))); err != nil {
		log.Printf("failed to store subgoal for %s: %v", a.id, err)
	}
	return len(a.route) > 0
}

// Step pops the next waypoint and returns the move toward it
func (a *ScriptedAgent) Step() core.Action {
	if len(a.route) == 0 {
		return core.Stay
	}
	next := a.route[0]
	a.route = a.route[1:]

	cur, _ := a.env.Position(a.id)
	switch {
	case next.Col == cur.Col && next.Row == cur.Row-1:
		return core.Up
	case next.Col == cur.Col && next.Row == cur.Row+1:
		return core.Down
	case next.Row == cur.Row && next.Col == cur.Col-1:
		return core.Left
	case next.Row == cur.Row && next.Col == cur.Col+1:
		return core.Right
	}
	return core.Stay
}

// ApplySubgoals drains subgoals published to this agent since the last tick
// and assigns them in arrival order, so the latest one wins. It returns how
// many were applied and whether the last one produced a route.
func (a *ScriptedAgent) ApplySubgoals() (int, bool) {
	if a.inbox == nil {
		return 0, false
	}
	applied, ok := 0, false
	for {
		select {
		case msg := <-a.inbox:
			sg, isSubgoal := msg.Content.(core.Subgoal)
			if !isSubgoal {
				log.Printf("%s ignoring message from %s: %v", a.id, msg.From, msg.Content)
				continue
			}
			ok = a.AssignSubgoal(sg.Target)
			applied++
			log.Printf("[%s] assign %s -> %v (path found=%t)", msg.From, a.id, sg.Target, ok)
		default:
			return applied, ok
		}
	}
}

// Idle reports whether the agent has no route to follow
func (a *ScriptedAgent) Idle() bool {
	return len(a.route) == 0
}

// Route returns a copy of the remaining waypoints
func (a *ScriptedAgent) Route() []core.Position {
	route := make([]core.Position, len(a.route))
	copy(route, a.route)
	return route
}

// Target returns the last assigned subgoal, if any
func (a *ScriptedAgent) Target() (core.Position, bool) {
	if a.target == nil {
		return core.Position{}, false
	}
	return *a.target, true
}

// Close unsubscribes the agent from its broker
func (a *ScriptedAgent) Close() error {
	if a.messageBroker == nil {
		return nil
	}
	return a.messageBroker.Unsubscribe(a.id)
}
