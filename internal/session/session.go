package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/Naser58164/praxis-medius/internal/domain"
	"github.com/Naser58164/praxis-medius/internal/progression"

	"go.uber.org/zap"
)

// Options 会话构造参数
type Options struct {
	// TickInterval 计时器周期，0 表示不启动计时 goroutine（测试中手动 Tick）
	TickInterval time.Duration
	Sinks        []domain.EventSink
	Logger       *zap.Logger
	Now          func() time.Time
}

// LabState 检验结果揭示状态
type LabState struct {
	Revealed   bool      `json:"revealed"`
	Results    any       `json:"results"`
	RevealedAt time.Time `json:"revealedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Participant 角色槽位
type Participant struct {
	Role      domain.Role `json:"role"`
	UserID    string      `json:"userId,omitempty"`
	Connected bool        `json:"connected"`
	JoinedAt  *time.Time  `json:"joinedAt,omitempty"`
	LeftAt    *time.Time  `json:"leftAt,omitempty"`

	token string
}

// Session 一次场景运行。所有可变状态由 mu 保护，
// 事件在持锁期间按变更顺序发往 sinks。
type Session struct {
	mu sync.Mutex

	id       string
	joinCode string
	scenario *domain.Scenario
	auto     *progression.Automaton

	status      domain.Status
	createdAt   time.Time
	startedAt   *time.Time
	pausedAt    *time.Time
	endedAt     *time.Time
	endReason   string
	pausedTotal time.Duration
	elapsed     int

	participants map[domain.Role]*Participant

	vitals           domain.Vitals
	findings         domain.Findings
	stateInitialized bool
	labs             map[string]*LabState
	actionLog        []domain.ActionLogEntry
	completed        map[string]struct{}
	completedOrder   []string
	sensorData       []domain.SensorReading
	vitalsHistory    []domain.VitalsSample
	results          *Results

	seq   uint64
	sinks []domain.EventSink

	tickInterval time.Duration
	tickGen      uint64
	stopTick     chan struct{}
	disposed     bool

	now    func() time.Time
	logger *zap.Logger
}

// New 从场景快照创建 CREATED 状态的会话。场景被深拷贝，进程图在此编译。
func New(id, joinCode string, sc *domain.Scenario, opts Options) (*Session, error) {
	if sc == nil {
		return nil, fmt.Errorf("%w: scenario is nil", domain.ErrValidation)
	}
	snapshot, err := sc.Clone()
	if err != nil {
		return nil, err
	}
	graph, err := progression.Compile(snapshot.ProgressionMap)
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		id:           id,
		joinCode:     joinCode,
		scenario:     snapshot,
		auto:         progression.NewAutomaton(graph),
		status:       domain.StatusCreated,
		createdAt:    now().UTC(),
		participants: make(map[domain.Role]*Participant, len(domain.Roles)),
		labs:         make(map[string]*LabState),
		completed:    make(map[string]struct{}),
		sinks:        append([]domain.EventSink(nil), opts.Sinks...),
		tickInterval: opts.TickInterval,
		now:          now,
		logger: logger.With(
			zap.String("session_id", id),
			zap.String("join_code", joinCode),
		),
	}
	for _, r := range domain.Roles {
		s.participants[r] = &Participant{Role: r}
	}
	s.initState()
	return s, nil
}

// initState 以场景初始体征/发现建立 currentState
func (s *Session) initState() {
	s.vitals = s.scenario.InitialVitals.Clamp()
	s.findings = s.scenario.InitialFindings.Clone()
	s.stateInitialized = true
}

// emit 持锁调用
func (s *Session) emit(name domain.EventName, data any) {
	s.seq++
	ev := domain.Event{
		SessionID: s.id,
		Seq:       s.seq,
		Name:      name,
		Data:      data,
		At:        s.now().UTC(),
	}
	for _, sink := range s.sinks {
		sink.Publish(ev)
	}
}

// ID 会话 ID
func (s *Session) ID() string { return s.id }

// JoinCode 加入码
func (s *Session) JoinCode() string { return s.joinCode }

// ScenarioID 场景 ID
func (s *Session) ScenarioID() string { return s.scenario.ID }

// Status 当前状态
func (s *Session) Status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ElapsedTime 运行秒数
func (s *Session) ElapsedTime() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// EndedAt 结束时间（未结束为 nil）
func (s *Session) EndedAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyTime(s.endedAt)
}

// Vitals 当前体征
func (s *Session) Vitals() domain.Vitals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vitals
}

// Findings 当前发现树副本
func (s *Session) Findings() domain.Findings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findings.Clone()
}

// CurrentNodeID 当前进程节点（图耗尽后为最后一个出口的目标 ID）
func (s *Session) CurrentNodeID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auto.Current()
}

// ActionLog 行为日志副本
func (s *Session) ActionLog() []domain.ActionLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ActionLogEntry(nil), s.actionLog...)
}

// CompletedCriticalActionIDs 按首次完成顺序
func (s *Session) CompletedCriticalActionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.completedOrder...)
}

// VitalsHistory 体征采样历史
func (s *Session) VitalsHistory() []domain.VitalsSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.VitalsSample(nil), s.vitalsHistory...)
}

// SensorData 模拟人回传记录
func (s *Session) SensorData() []domain.SensorReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SensorReading(nil), s.sensorData...)
}

// CurrentState 病人当前状态
type CurrentState struct {
	Vitals        domain.Vitals   `json:"vitals"`
	Findings      domain.Findings `json:"findings"`
	CurrentNodeID string          `json:"currentNodeId,omitempty"`
	Exhausted     bool            `json:"progressionExhausted"`
}

// Snapshot 会话快照（join 应答、REST 查询）
type Snapshot struct {
	SessionID                  string                  `json:"sessionId"`
	JoinCode                   string                  `json:"joinCode"`
	ScenarioID                 string                  `json:"scenarioId"`
	ScenarioVersion            int                     `json:"scenarioVersion"`
	ScenarioTitle              string                  `json:"scenarioTitle"`
	Patient                    domain.PatientProfile   `json:"patient"`
	Status                     domain.Status           `json:"status"`
	CreatedAt                  time.Time               `json:"createdAt"`
	StartedAt                  *time.Time              `json:"startedAt,omitempty"`
	PausedAt                   *time.Time              `json:"pausedAt,omitempty"`
	EndedAt                    *time.Time              `json:"endedAt,omitempty"`
	EndReason                  string                  `json:"endReason,omitempty"`
	ElapsedTime                int                     `json:"elapsedTime"`
	TotalPausedTime            int                     `json:"totalPausedTime"`
	Participants               []Participant           `json:"participants"`
	CurrentState               CurrentState            `json:"currentState"`
	RevealedLabs               map[string]LabState     `json:"revealedLabs"`
	ActionLog                  []domain.ActionLogEntry `json:"actionLog"`
	CompletedCriticalActionIDs []string                `json:"completedCriticalActionIds"`
	Results                    *Results                `json:"results,omitempty"`
	Scenario                   *domain.Scenario        `json:"scenario,omitempty"`
	Seq                        uint64                  `json:"seq"`
}

// Snapshot 按角色生成快照；只有考官能看到完整场景（含未揭示的检验和进程图）
func (s *Session) Snapshot(role domain.Role) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		SessionID:                  s.id,
		JoinCode:                   s.joinCode,
		ScenarioID:                 s.scenario.ID,
		ScenarioVersion:            s.scenario.Version,
		ScenarioTitle:              s.scenario.Title,
		Patient:                    s.scenario.Patient,
		Status:                     s.status,
		CreatedAt:                  s.createdAt,
		StartedAt:                  copyTime(s.startedAt),
		PausedAt:                   copyTime(s.pausedAt),
		EndedAt:                    copyTime(s.endedAt),
		EndReason:                  s.endReason,
		ElapsedTime:                s.elapsed,
		TotalPausedTime:            s.totalPausedSeconds(),
		Participants:               s.participantList(),
		RevealedLabs:               make(map[string]LabState, len(s.labs)),
		ActionLog:                  append([]domain.ActionLogEntry{}, s.actionLog...),
		CompletedCriticalActionIDs: append([]string{}, s.completedOrder...),
		Seq:                        s.seq,
		CurrentState: CurrentState{
			Vitals:        s.vitals,
			Findings:      s.findings.Clone(),
			CurrentNodeID: s.auto.Current(),
			Exhausted:     s.auto.Exhausted(),
		},
	}
	for id, lab := range s.labs {
		snap.RevealedLabs[id] = *lab
	}
	if s.results != nil {
		r := *s.results
		snap.Results = &r
	}
	if role == domain.RoleExaminer {
		sc, err := s.scenario.Clone()
		if err != nil {
			return nil, err
		}
		snap.Scenario = sc
	}
	return snap, nil
}

// Summary 列表用的会话摘要
type Summary struct {
	SessionID     string        `json:"sessionId"`
	JoinCode      string        `json:"joinCode"`
	ScenarioID    string        `json:"scenarioId"`
	ScenarioTitle string        `json:"scenarioTitle"`
	Status        domain.Status `json:"status"`
	ElapsedTime   int           `json:"elapsedTime"`
	CreatedAt     time.Time     `json:"createdAt"`
	Connected     []domain.Role `json:"connected"`
}

// Summary 会话摘要
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		SessionID:     s.id,
		JoinCode:      s.joinCode,
		ScenarioID:    s.scenario.ID,
		ScenarioTitle: s.scenario.Title,
		Status:        s.status,
		ElapsedTime:   s.elapsed,
		CreatedAt:     s.createdAt,
		Connected:     []domain.Role{},
	}
	for _, r := range domain.Roles {
		if s.participants[r].Connected {
			sum.Connected = append(sum.Connected, r)
		}
	}
	return sum
}

func (s *Session) participantList() []Participant {
	out := make([]Participant, 0, len(domain.Roles))
	for _, r := range domain.Roles {
		p := *s.participants[r]
		p.JoinedAt = copyTime(p.JoinedAt)
		p.LeftAt = copyTime(p.LeftAt)
		p.token = ""
		out = append(out, p)
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
