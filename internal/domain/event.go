package domain

import "time"

// EventName 广播事件名
type EventName string

const (
	EventVitalsUpdate       EventName = "vitalsUpdate"
	EventFindingsUpdate     EventName = "findingsUpdate"
	EventLabResultsRevealed EventName = "labResultsRevealed"
	EventPatientSpeak       EventName = "patientSpeak"
	EventSimulationStarted  EventName = "simulationStarted"
	EventSimulationPaused   EventName = "simulationPaused"
	EventSimulationResumed  EventName = "simulationResumed"
	EventSimulationEnded    EventName = "simulationEnded"
	EventActionPerformed    EventName = "actionPerformed"
	EventStateChange        EventName = "stateChange"
	EventParticipantJoined  EventName = "participantJoined"
	EventParticipantLeft    EventName = "participantLeft"
	EventManikinCommand     EventName = "manikinCommand"
	EventManikinFeedback    EventName = "manikinFeedback"
	EventTick               EventName = "tick"
)

// Event 会话事件；Seq 在会话内单调递增，与变更顺序一致
type Event struct {
	SessionID string    `json:"sessionId"`
	Seq       uint64    `json:"seq"`
	Name      EventName `json:"event"`
	Data      any       `json:"data,omitempty"`
	At        time.Time `json:"at"`
}

// EventSink 接收会话事件。
// Publish 在会话锁内调用，实现必须不阻塞、不回调会话。
type EventSink interface {
	Publish(ev Event)
}

// SinkFunc 函数适配
type SinkFunc func(ev Event)

// Publish 实现 EventSink
func (f SinkFunc) Publish(ev Event) { f(ev) }

// 事件负载

type VitalsUpdateData struct {
	Vitals Vitals `json:"vitals"`
}

type FindingsUpdateData struct {
	Path  FindingPath `json:"path"`
	Value any         `json:"value"`
}

type LabRevealedData struct {
	LabID   string `json:"labId"`
	Results any    `json:"results"`
}

type ActionPerformedData struct {
	Entry ActionLogEntry `json:"entry"`
}

type StateChangeData struct {
	FromNodeID string `json:"fromNodeId,omitempty"`
	NodeID     string `json:"nodeId"`
	Exhausted  bool   `json:"exhausted"`
	Vitals     Vitals `json:"vitals"`
	Trigger    string `json:"trigger"`
}

type ParticipantData struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

type ManikinCommandData struct {
	Action string `json:"action"`
	NodeID string `json:"nodeId,omitempty"`
}

type TickData struct {
	ElapsedTime int `json:"elapsedTime"`
}

type LifecycleData struct {
	Status       Status     `json:"status"`
	ElapsedTime  int        `json:"elapsedTime"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	InitialState any        `json:"initialState,omitempty"`
	Results      any        `json:"results,omitempty"`
}
