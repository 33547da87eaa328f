package progression

import (
	"fmt"

	"github.com/Naser58164/praxis-medius/internal/domain"
)

// Transition 选中的一次节点迁移，Advance 之后才生效
type Transition struct {
	From      string
	To        string
	Trigger   domain.TriggerType
	Outcome   domain.Outcome
	Elapsed   int  // 触发时的会话运行秒数
	Exhausted bool // To 不在图中，之后不再有迁移
}

// Automaton 单个会话的进程游标。
// 不加锁，由会话在自己的锁内驱动。
type Automaton struct {
	graph     *Graph
	current   string
	enteredAt int
	visited   map[string]struct{}
}

// NewAutomaton 游标置于图的初始节点
func NewAutomaton(g *Graph) *Automaton {
	a := &Automaton{
		graph:   g,
		current: g.Start(),
		visited: make(map[string]struct{}),
	}
	if a.current != "" {
		a.visited[a.current] = struct{}{}
	}
	return a
}

// Current 当前节点 ID（可能是图外的终点 ID，或空）
func (a *Automaton) Current() string {
	return a.current
}

// Exhausted 当前节点不在图中
func (a *Automaton) Exhausted() bool {
	return !a.graph.Has(a.current)
}

// EnteredAt 当前节点成为当前节点时的会话运行秒数
func (a *Automaton) EnteredAt() int {
	return a.enteredAt
}

// OnAction 当前节点等待该行为时返回选中的迁移；否则返回 nil
func (a *Automaton) OnAction(actionID string, env GuardEnv) (*Transition, error) {
	n, ok := a.graph.byAction[actionKey{a.current, actionID}]
	if !ok {
		return nil, nil
	}
	return a.fire(n, domain.TriggerAction, env)
}

// OnTick 当前 TIME 节点已停留足够的运行时间（env.Elapsed - EnteredAt）时返回迁移
func (a *Automaton) OnTick(env GuardEnv) (*Transition, error) {
	n, ok := a.graph.nodes[a.current]
	if !ok || n.waiting.Type != domain.TriggerTime {
		return nil, nil
	}
	if env.Elapsed-a.enteredAt < n.waiting.Seconds {
		return nil, nil
	}
	return a.fire(n, domain.TriggerTime, env)
}

// OnManual 考官手动推进 MANUAL 节点，返回迁移
func (a *Automaton) OnManual(env GuardEnv) (*Transition, error) {
	n, ok := a.graph.nodes[a.current]
	if !ok {
		return nil, fmt.Errorf("%w: progression graph is exhausted", domain.ErrValidation)
	}
	if n.waiting.Type != domain.TriggerManual {
		return nil, fmt.Errorf("%w: node %q waits for %s, not a manual advance", domain.ErrValidation, n.id, n.waiting.Type)
	}
	return a.fire(n, domain.TriggerManual, env)
}

func (a *Automaton) fire(n *node, trigger domain.TriggerType, env GuardEnv) (*Transition, error) {
	o, err := n.selectOutcome(trigger, env)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, nil
	}
	next := o.def.NextStateID
	if _, seen := a.visited[next]; seen {
		return nil, fmt.Errorf("%w: %q -> %q", domain.ErrReentry, n.id, next)
	}
	return &Transition{
		From:      n.id,
		To:        next,
		Trigger:   trigger,
		Outcome:   o.def,
		Elapsed:   env.Elapsed,
		Exhausted: !a.graph.Has(next),
	}, nil
}

// Advance 提交迁移。游标已离开 tr.From 或目标已访问过时拒绝，
// 同一迁移提交两次只生效一次。
func (a *Automaton) Advance(tr *Transition) error {
	if tr == nil {
		return nil
	}
	if tr.From != a.current {
		return fmt.Errorf("%w: transition from %q but current node is %q", domain.ErrReentry, tr.From, a.current)
	}
	if _, seen := a.visited[tr.To]; seen {
		return fmt.Errorf("%w: %q -> %q", domain.ErrReentry, tr.From, tr.To)
	}
	a.visited[tr.To] = struct{}{}
	a.current = tr.To
	a.enteredAt = tr.Elapsed
	return nil
}
