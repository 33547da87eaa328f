package scenario

import (
	"fmt"

	"github.com/Naser58164/praxis-medius/internal/domain"
	"github.com/Naser58164/praxis-medius/internal/progression"
)

// Validate 检查场景模板的结构约束，返回的错误都包装 domain.ErrValidation
func Validate(s *domain.Scenario) error {
	if s == nil {
		return fmt.Errorf("%w: scenario is nil", domain.ErrValidation)
	}
	if s.ID == "" {
		return fmt.Errorf("%w: scenarioId is required", domain.ErrValidation)
	}
	if s.Title == "" {
		return fmt.Errorf("%w: title is required", domain.ErrValidation)
	}

	seenIDs := make(map[string]struct{}, len(s.CriticalActions))
	seenActions := make(map[string]struct{}, len(s.CriticalActions))
	for i, ca := range s.CriticalActions {
		if ca.ID == "" || ca.ActionID == "" {
			return fmt.Errorf("%w: critical action %d needs id and actionId", domain.ErrValidation, i)
		}
		if _, dup := seenIDs[ca.ID]; dup {
			return fmt.Errorf("%w: duplicate critical action id %q", domain.ErrValidation, ca.ID)
		}
		if _, dup := seenActions[ca.ActionID]; dup {
			return fmt.Errorf("%w: actionId %q is listed as critical twice", domain.ErrValidation, ca.ActionID)
		}
		if !ca.Dimension.Valid() {
			return fmt.Errorf("%w: critical action %q has unknown dimension %q", domain.ErrValidation, ca.ID, ca.Dimension)
		}
		if ca.TimeLimit != nil && *ca.TimeLimit <= 0 {
			return fmt.Errorf("%w: critical action %q time limit must be positive", domain.ErrValidation, ca.ID)
		}
		seenIDs[ca.ID] = struct{}{}
		seenActions[ca.ActionID] = struct{}{}
	}

	if err := validateFindingKeys(s.InitialFindings, nil); err != nil {
		return err
	}

	if _, err := progression.Compile(s.ProgressionMap); err != nil {
		return err
	}
	for _, n := range s.ProgressionMap {
		for _, o := range n.Outcomes {
			for raw := range o.Consequence.FindingsChange {
				p, err := domain.ParseFindingPath(raw)
				if err != nil {
					return err
				}
				if !s.FindingsSchema.Allows(p) {
					return fmt.Errorf("%w: node %q writes %q outside findingsSchema", domain.ErrValidation, n.NodeID, raw)
				}
			}
		}
	}
	return nil
}

// validateFindingKeys 初始发现树的每个键都必须能被 FindingPath 寻址
func validateFindingKeys(m map[string]any, prefix domain.FindingPath) error {
	for k, v := range m {
		path := append(append(domain.FindingPath{}, prefix...), k)
		if _, err := domain.ParseFindingPath(k); err != nil {
			return fmt.Errorf("%w: initial finding key %q is not addressable", domain.ErrValidation, path.String())
		}
		if child, ok := v.(map[string]any); ok {
			if err := validateFindingKeys(child, path); err != nil {
				return err
			}
		}
	}
	return nil
}
