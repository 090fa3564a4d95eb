package training

import (
	"math/rand"

	"github.com/boristopalov/gridplan/pkg/config"
	"github.com/boristopalov/gridplan/pkg/core"
)

// QLearner is tabular epsilon-greedy Q-learning over State keys
type QLearner struct {
	q            map[State][]float64
	alpha        float64
	gamma        float64
	epsilon      float64
	epsilonMin   float64
	epsilonDecay float64
	rng          *rand.Rand
}

func NewQLearner(cfg config.TrainingConfig, rng *rand.Rand) *QLearner {
	return &QLearner{
		q:            make(map[State][]float64),
		alpha:        clampFloat(cfg.Alpha, 0, 1),
		gamma:        clampFloat(cfg.Gamma, 0, 1),
		epsilon:      clampFloat(cfg.Epsilon, 0, 1),
		epsilonMin:   clampFloat(cfg.EpsilonMin, 0, 1),
		epsilonDecay: cfg.EpsilonDecay,
		rng:          rng,
	}
}

func (l *QLearner) values(s State) []float64 {
	v, ok := l.q[s]
	if !ok {
		v = make([]float64, core.NumActions)
		l.q[s] = v
	}
	return v
}

// Value returns Q(s, a); unseen pairs are zero
func (l *QLearner) Value(s State, a core.Action) float64 {
	v, ok := l.q[s]
	if !ok {
		return 0
	}
	return v[a]
}

// Act explores with probability epsilon, otherwise acts greedily
func (l *QLearner) Act(s State) core.Action {
	if l.rng.Float64() < l.epsilon {
		return core.Action(l.rng.Intn(core.NumActions))
	}
	return l.Greedy(s)
}

// Greedy returns the highest-valued action; ties go to the lowest code
func (l *QLearner) Greedy(s State) core.Action {
	v, ok := l.q[s]
	if !ok {
		return core.Stay
	}
	best := 0
	for a := 1; a < len(v); a++ {
		if v[a] > v[best] {
			best = a
		}
	}
	return core.Action(best)
}

// Update applies Q(s,a) += alpha * (r + gamma * max Q(next) - Q(s,a))
func (l *QLearner) Update(s State, a core.Action, reward float64, next State, done bool) {
	target := reward
	if !done {
		target += l.gamma * maxValue(l.values(next))
	}
	v := l.values(s)
	v[a] += l.alpha * (target - v[a])
}

// DecayEpsilon shrinks exploration once per episode, never below the floor
func (l *QLearner) DecayEpsilon() {
	if l.epsilonDecay <= 0 {
		return
	}
	l.epsilon = maxFloat(l.epsilonMin, l.epsilon*l.epsilonDecay)
}

func (l *QLearner) Epsilon() float64 {
	return l.epsilon
}

// States is the number of distinct states seen so far
func (l *QLearner) States() int {
	return len(l.q)
}

func maxValue(v []float64) float64 {
	max := v[0]
	for _, x := range v[1:] {
		if x > max {
			max = x
		}
	}
	return max
}

func clampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
