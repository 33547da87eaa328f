package session

import (
	"github.com/Naser58164/praxis-medius/internal/domain"
)

const (
	OutcomePass = "PASS"
	OutcomeFail = "FAIL"
)

// DimensionScore 单个维度的统计
type DimensionScore struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
}

// CriticalActionResult 单个关键行为的完成情况
type CriticalActionResult struct {
	ID              string           `json:"id"`
	ActionID        string           `json:"actionId"`
	Label           string           `json:"label"`
	Dimension       domain.Dimension `json:"dimension"`
	Required        bool             `json:"required"`
	Completed       bool             `json:"completed"`
	CompletedAt     *int             `json:"completedAt,omitempty"` // 首次完成时的运行秒数
	TimeLimit       *int             `json:"timeLimit,omitempty"`
	WithinTimeLimit *bool            `json:"withinTimeLimit,omitempty"`
}

// Results 评分结果
type Results struct {
	TotalActions               int                                 `json:"totalActions"`
	CriticalActionsCompleted   int                                 `json:"criticalActionsCompleted"`
	CriticalActionsTotal       int                                 `json:"criticalActionsTotal"`
	DimensionScores            map[domain.Dimension]DimensionScore `json:"dimensionScores"`
	CompletedCriticalActionIDs []string                            `json:"completedCriticalActionIds"`
	MissedCriticalActionIDs    []string                            `json:"missedCriticalActionIds"`
	CriticalActions            []CriticalActionResult              `json:"criticalActions"`
	Passed                     bool                                `json:"passed"`
	Outcome                    string                              `json:"outcome"`
	Duration                   int                                 `json:"duration"`
	EndReason                  string                              `json:"endReason,omitempty"`
}

// ComputeResults 只依赖日志与关键行为列表，重放同一日志得到相同结果。
// 关键行为按 actionId 精确匹配，重复执行只计一次；
// 所有 required 的关键行为都完成才算 PASS。
func ComputeResults(log []domain.ActionLogEntry, criticalActions []domain.CriticalAction, duration int, endReason string) Results {
	res := Results{
		TotalActions:               len(log),
		CriticalActionsTotal:       len(criticalActions),
		DimensionScores:            make(map[domain.Dimension]DimensionScore),
		CompletedCriticalActionIDs: []string{},
		MissedCriticalActionIDs:    []string{},
		CriticalActions:            make([]CriticalActionResult, 0, len(criticalActions)),
		Duration:                   duration,
		EndReason:                  endReason,
	}

	firstAt := make(map[string]int, len(criticalActions))
	for _, e := range log {
		score := res.DimensionScores[e.Dimension]
		score.Total++
		if e.Success {
			score.Successful++
		}
		res.DimensionScores[e.Dimension] = score

		if _, seen := firstAt[e.ActionID]; !seen {
			firstAt[e.ActionID] = e.ElapsedTime
		}
	}

	passed := true
	for _, ca := range criticalActions {
		r := CriticalActionResult{
			ID:        ca.ID,
			ActionID:  ca.ActionID,
			Label:     ca.Label,
			Dimension: ca.Dimension,
			Required:  ca.Required,
			TimeLimit: ca.TimeLimit,
		}
		if at, ok := firstAt[ca.ActionID]; ok {
			r.Completed = true
			r.CompletedAt = &at
			if ca.TimeLimit != nil {
				within := at <= *ca.TimeLimit
				r.WithinTimeLimit = &within
			}
			res.CriticalActionsCompleted++
			res.CompletedCriticalActionIDs = append(res.CompletedCriticalActionIDs, ca.ID)
		} else {
			res.MissedCriticalActionIDs = append(res.MissedCriticalActionIDs, ca.ID)
			if ca.Required {
				passed = false
			}
		}
		res.CriticalActions = append(res.CriticalActions, r)
	}

	res.Passed = passed
	res.Outcome = OutcomeFail
	if passed {
		res.Outcome = OutcomePass
	}
	return res
}
