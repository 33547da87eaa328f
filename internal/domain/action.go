package domain

import "time"

// ActionLogEntry 行为日志条目，追加后不可修改
type ActionLogEntry struct {
	EntryID           string         `json:"entryId"`
	ActionID          string         `json:"actionId"`
	ActionLabel       string         `json:"actionLabel"`
	Dimension         Dimension      `json:"dimension"`
	PerformedBy       string         `json:"performedBy"`
	Parameters        map[string]any `json:"parameters,omitempty"`
	ElapsedTime       int            `json:"elapsedTime"`
	ClientElapsedTime *int           `json:"clientElapsedTime,omitempty"`
	IsCriticalAction  bool           `json:"isCriticalAction"`
	CriticalActionID  *string        `json:"criticalActionId"`
	Success           bool           `json:"success"`
	Timestamp         time.Time      `json:"timestamp"`
}

// ActionInput 记录行为的输入（条目 ID、时间、关键行为标记由会话生成）
type ActionInput struct {
	ActionID          string
	ActionLabel       string
	Dimension         Dimension
	PerformedBy       string
	Parameters        map[string]any
	ClientElapsedTime *int
	Success           *bool // nil 视为成功
}

// SensorReading 模拟人回传的传感器数据
type SensorReading struct {
	Payload     map[string]any `json:"payload"`
	ElapsedTime int            `json:"elapsedTime"`
	Timestamp   time.Time      `json:"timestamp"`
}

// VitalsSample 体征历史采样
type VitalsSample struct {
	Vitals      Vitals    `json:"vitals"`
	ElapsedTime int       `json:"elapsedTime"`
	Timestamp   time.Time `json:"timestamp"`
}
