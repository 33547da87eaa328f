package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Dimension 行为/关键行为的评分维度
type Dimension string

const (
	DimensionSafety           Dimension = "SAFETY"
	DimensionCommunication    Dimension = "COMMUNICATION"
	DimensionAssessment       Dimension = "ASSESSMENT"
	DimensionIntervention     Dimension = "INTERVENTION"
	DimensionDrugIV           Dimension = "DRUG_IV"
	DimensionTestsDiagnostics Dimension = "TESTS_DIAGNOSTICS"
)

// Dimensions 已知维度
var Dimensions = []Dimension{
	DimensionSafety,
	DimensionCommunication,
	DimensionAssessment,
	DimensionIntervention,
	DimensionDrugIV,
	DimensionTestsDiagnostics,
}

// Valid 是否为已知维度
func (d Dimension) Valid() bool {
	for _, known := range Dimensions {
		if d == known {
			return true
		}
	}
	return false
}

// PatientProfile 病人信息
type PatientProfile struct {
	FirstName          string   `json:"firstName,omitempty"`
	LastName           string   `json:"lastName,omitempty"`
	Age                int      `json:"age,omitempty"`
	Gender             string   `json:"gender,omitempty"`
	Weight             float64  `json:"weight,omitempty"`
	Height             float64  `json:"height,omitempty"`
	RoomNumber         string   `json:"roomNumber,omitempty"`
	CodeStatus         string   `json:"codeStatus,omitempty"`
	Allergies          []string `json:"allergies,omitempty"`
	ChiefComplaint     string   `json:"chiefComplaint,omitempty"`
	AdmissionDiagnosis string   `json:"admissionDiagnosis,omitempty"`
	MedicalHistory     []string `json:"medicalHistory,omitempty"`
	SurgicalHistory    []string `json:"surgicalHistory,omitempty"`
	SocialHistory      string   `json:"socialHistory,omitempty"`
	FamilyHistory      string   `json:"familyHistory,omitempty"`
	CurrentMedications []string `json:"currentMedications,omitempty"`
}

// CriticalAction 场景指定的关键行为
type CriticalAction struct {
	ID        string    `json:"id"`
	ActionID  string    `json:"actionId"`
	Label     string    `json:"label"`
	Dimension Dimension `json:"dimension"`
	Required  bool      `json:"required"`
	TimeLimit *int      `json:"timeLimit,omitempty"` // 秒，仅供评分/界面参考
}

// TriggerType 进程节点的等待类型
type TriggerType string

const (
	TriggerAction TriggerType = "ACTION"
	TriggerTime   TriggerType = "TIME"
	TriggerManual TriggerType = "MANUAL"
)

// WaitingFor 节点等待的触发器。
// JSON 形式与场景文件一致：{"type":"ACTION","trigger":"admin_albuterol"}
// 或 {"type":"TIME","trigger":300}
type WaitingFor struct {
	Type    TriggerType
	Action  string
	Seconds int
}

type waitingForJSON struct {
	Type    TriggerType     `json:"type"`
	Trigger json.RawMessage `json:"trigger,omitempty"`
}

// MarshalJSON 输出 {type, trigger}
func (w WaitingFor) MarshalJSON() ([]byte, error) {
	out := waitingForJSON{Type: w.Type}
	var err error
	switch w.Type {
	case TriggerAction:
		out.Trigger, err = json.Marshal(w.Action)
	case TriggerTime:
		out.Trigger, err = json.Marshal(w.Seconds)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// UnmarshalJSON 根据 type 解析 trigger
func (w *WaitingFor) UnmarshalJSON(b []byte) error {
	var raw waitingForJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: waitingFor: %v", ErrValidation, err)
	}
	w.Type = raw.Type
	w.Action = ""
	w.Seconds = 0
	switch raw.Type {
	case TriggerAction:
		if err := json.Unmarshal(raw.Trigger, &w.Action); err != nil {
			return fmt.Errorf("%w: ACTION trigger must be an action id string", ErrValidation)
		}
	case TriggerTime:
		if err := json.Unmarshal(raw.Trigger, &w.Seconds); err != nil {
			return fmt.Errorf("%w: TIME trigger must be whole seconds", ErrValidation)
		}
	case TriggerManual:
	default:
		return fmt.Errorf("%w: unknown waitingFor type %q", ErrValidation, raw.Type)
	}
	return nil
}

// PatientSpeech 病人说话事件
type PatientSpeech struct {
	Text string `json:"text"`
	Mood string `json:"mood,omitempty"`
}

// Consequence 出口被选中后对病人状态的影响
type Consequence struct {
	VitalsChange   *VitalsPatch   `json:"vitalsChange,omitempty"`
	FindingsChange map[string]any `json:"findingsChange,omitempty"` // 点分路径 -> 值
	PatientSpeech  *PatientSpeech `json:"patientSpeech,omitempty"`
	IotAction      string         `json:"iotAction,omitempty"`
}

// Outcome 节点出口；Guard 为空表示无条件（兜底）
type Outcome struct {
	TriggerCondition string      `json:"triggerCondition,omitempty"`
	Guard            string      `json:"guard,omitempty"`
	NextStateID      string      `json:"nextStateId"`
	Consequence      Consequence `json:"consequence"`
}

// ProgressionNode 进程图节点
type ProgressionNode struct {
	NodeID     string     `json:"nodeId"`
	WaitingFor WaitingFor `json:"waitingFor"`
	Outcomes   []Outcome  `json:"outcomes"`
}

// Scenario 场景模板，会话期间只读
type Scenario struct {
	ID                string            `json:"scenarioId"`
	Version           int               `json:"version"`
	Title             string            `json:"title"`
	Category          string            `json:"category,omitempty"`
	Difficulty        string            `json:"difficulty,omitempty"`
	EstimatedDuration int               `json:"estimatedDuration,omitempty"` // 分钟
	Description       string            `json:"description,omitempty"`
	Objectives        []string          `json:"objectives,omitempty"`
	Tags              []string          `json:"tags,omitempty"`
	Patient           PatientProfile    `json:"patient"`
	InitialVitals     Vitals            `json:"initialVitals"`
	InitialFindings   Findings          `json:"initialFindings,omitempty"`
	FindingsSchema    FindingsSchema    `json:"findingsSchema,omitempty"`
	InitialLabs       map[string]any    `json:"initialLabs,omitempty"`
	CriticalActions   []CriticalAction  `json:"criticalActions,omitempty"`
	ProgressionMap    []ProgressionNode `json:"progressionMap,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// Clone 深拷贝（JSON 往返，场景中只有可序列化的数据）
func (s *Scenario) Clone() (*Scenario, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scenario: %w", err)
	}
	var out Scenario
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scenario: %w", err)
	}
	if out.InitialFindings == nil {
		out.InitialFindings = Findings{}
	}
	return &out, nil
}

// CriticalActionFor 按 actionId 精确匹配关键行为
func (s *Scenario) CriticalActionFor(actionID string) (CriticalAction, bool) {
	for _, ca := range s.CriticalActions {
		if ca.ActionID == actionID {
			return ca, true
		}
	}
	return CriticalAction{}, false
}
