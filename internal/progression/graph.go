package progression

import (
	"fmt"

	"github.com/Naser58164/praxis-medius/internal/domain"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// GuardEnv 出口 guard 表达式可见的变量
type GuardEnv struct {
	HeartRate        float64 `expr:"heartRate"`
	Systolic         float64 `expr:"systolic"`
	Diastolic        float64 `expr:"diastolic"`
	RespiratoryRate  float64 `expr:"respiratoryRate"`
	OxygenSaturation float64 `expr:"oxygenSaturation"`
	Temperature      float64 `expr:"temperature"`
	PainLevel        float64 `expr:"painLevel"`
	Elapsed          int     `expr:"elapsed"`
	Action           string  `expr:"action"`
}

// NewGuardEnv 由当前体征构造 guard 环境
func NewGuardEnv(v domain.Vitals, elapsed int, action string) GuardEnv {
	return GuardEnv{
		HeartRate:        v.HeartRate,
		Systolic:         v.BloodPressure.Systolic,
		Diastolic:        v.BloodPressure.Diastolic,
		RespiratoryRate:  v.RespiratoryRate,
		OxygenSaturation: v.OxygenSaturation,
		Temperature:      v.Temperature,
		PainLevel:        v.PainLevel,
		Elapsed:          elapsed,
		Action:           action,
	}
}

type outcome struct {
	def     domain.Outcome
	program *vm.Program // nil 表示无条件
}

type node struct {
	id       string
	waiting  domain.WaitingFor
	outcomes []outcome
}

type actionKey struct {
	nodeID   string
	actionID string
}

// Graph 编译后的进程图，只读，可在多个会话间共享
type Graph struct {
	start    string
	nodes    map[string]*node
	byAction map[actionKey]*node
}

// Compile 校验并编译进程图：节点 ID 唯一、触发器合法、guard 可编译、无环。
// 指向不存在节点的 nextStateId 合法，表示图在该出口处结束。
func Compile(nodes []domain.ProgressionNode) (*Graph, error) {
	g := &Graph{
		nodes:    make(map[string]*node, len(nodes)),
		byAction: make(map[actionKey]*node),
	}

	for i, pn := range nodes {
		if pn.NodeID == "" {
			return nil, fmt.Errorf("%w: progression node %d has no nodeId", domain.ErrValidation, i)
		}
		if _, dup := g.nodes[pn.NodeID]; dup {
			return nil, fmt.Errorf("%w: duplicate progression node %q", domain.ErrValidation, pn.NodeID)
		}
		if err := validateTrigger(pn); err != nil {
			return nil, err
		}
		if len(pn.Outcomes) == 0 {
			return nil, fmt.Errorf("%w: progression node %q has no outcomes", domain.ErrValidation, pn.NodeID)
		}

		n := &node{id: pn.NodeID, waiting: pn.WaitingFor}
		for j, o := range pn.Outcomes {
			if o.NextStateID == "" {
				return nil, fmt.Errorf("%w: node %q outcome %d has no nextStateId", domain.ErrValidation, pn.NodeID, j)
			}
			if o.Consequence.VitalsChange != nil {
				if err := o.Consequence.VitalsChange.Validate(); err != nil {
					return nil, fmt.Errorf("node %q outcome %d: %w", pn.NodeID, j, err)
				}
			}
			for path := range o.Consequence.FindingsChange {
				if _, err := domain.ParseFindingPath(path); err != nil {
					return nil, fmt.Errorf("node %q outcome %d: %w", pn.NodeID, j, err)
				}
			}
			co := outcome{def: o}
			if o.Guard != "" {
				program, err := expr.Compile(o.Guard, expr.Env(GuardEnv{}), expr.AsBool())
				if err != nil {
					return nil, fmt.Errorf("%w: node %q outcome %d guard: %v", domain.ErrValidation, pn.NodeID, j, err)
				}
				co.program = program
			}
			n.outcomes = append(n.outcomes, co)
		}

		g.nodes[n.id] = n
		if n.waiting.Type == domain.TriggerAction {
			g.byAction[actionKey{n.id, n.waiting.Action}] = n
		}
		if i == 0 {
			g.start = n.id
		}
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

func validateTrigger(pn domain.ProgressionNode) error {
	switch pn.WaitingFor.Type {
	case domain.TriggerAction:
		if pn.WaitingFor.Action == "" {
			return fmt.Errorf("%w: node %q waits for an empty action", domain.ErrValidation, pn.NodeID)
		}
	case domain.TriggerTime:
		if pn.WaitingFor.Seconds <= 0 {
			return fmt.Errorf("%w: node %q TIME trigger must be positive", domain.ErrValidation, pn.NodeID)
		}
	case domain.TriggerManual:
	default:
		return fmt.Errorf("%w: node %q has unknown trigger type %q", domain.ErrValidation, pn.NodeID, pn.WaitingFor.Type)
	}
	return nil
}

// checkAcyclic 三色 DFS，发现回边即拒绝
func (g *Graph) checkAcyclic() error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.nodes))

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = grey
		for _, o := range g.nodes[id].outcomes {
			next := o.def.NextStateID
			if _, ok := g.nodes[next]; !ok {
				continue
			}
			switch color[next] {
			case grey:
				return fmt.Errorf("%w: progression graph has a cycle through %q -> %q", domain.ErrValidation, id, next)
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for id := range g.nodes {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Start 初始节点，空图返回 ""
func (g *Graph) Start() string {
	return g.start
}

// Has 节点是否存在
func (g *Graph) Has(nodeID string) bool {
	_, ok := g.nodes[nodeID]
	return ok
}

// WaitingFor 节点的触发器
func (g *Graph) WaitingFor(nodeID string) (domain.WaitingFor, bool) {
	n, ok := g.nodes[nodeID]
	if !ok {
		return domain.WaitingFor{}, false
	}
	return n.waiting, true
}

// conditionFits triggerCondition 为空或与触发方式一致时出口才参与选择。
// ACTION 接受 SUCCESS，TIME 接受 TIMEOUT，MANUAL 接受 MANUAL 或 SUCCESS。
func conditionFits(condition string, trigger domain.TriggerType) bool {
	switch condition {
	case "":
		return true
	case "SUCCESS":
		return trigger == domain.TriggerAction || trigger == domain.TriggerManual
	case "TIMEOUT":
		return trigger == domain.TriggerTime
	case "MANUAL":
		return trigger == domain.TriggerManual
	}
	return false
}

// selectOutcome 在与触发方式相符的出口中按声明顺序取第一个 guard 为真的出口；
// 都不满足时取第一个无条件出口
func (n *node) selectOutcome(trigger domain.TriggerType, env GuardEnv) (*outcome, error) {
	var fallback *outcome
	for i := range n.outcomes {
		o := &n.outcomes[i]
		if !conditionFits(o.def.TriggerCondition, trigger) {
			continue
		}
		if o.program == nil {
			if fallback == nil {
				fallback = o
			}
			continue
		}
		res, err := expr.Run(o.program, env)
		if err != nil {
			return nil, fmt.Errorf("node %q guard %q: %w", n.id, o.def.Guard, err)
		}
		if ok, _ := res.(bool); ok {
			return o, nil
		}
	}
	return fallback, nil
}
