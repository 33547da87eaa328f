package session

import (
	"sync"
	"testing"

	"github.com/Naser58164/praxis-medius/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAction_RejectedUnlessRunning(t *testing.T) {
	for _, status := range []domain.Status{domain.StatusCreated, domain.StatusPaused, domain.StatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			s, _, _ := newTestSession(t, "ASTHMA-SEV-001")
			driveTo(t, s, status)

			_, err := s.LogAction(action("hand_hygiene"))
			assert.ErrorIs(t, err, domain.ErrSimulationNotActive)
			assert.Empty(t, s.ActionLog())
		})
	}

	s, _, _ := newTestSession(t, "ASTHMA-SEV-001")
	driveTo(t, s, domain.StatusRunning)
	entry, err := s.LogAction(action("hand_hygiene"))
	require.NoError(t, err)
	assert.Len(t, s.ActionLog(), 1)
	assert.NotEmpty(t, entry.EntryID)
}

func TestLogAction_EntryFields(t *testing.T) {
	s, sink, _ := newTestSession(t, "ASTHMA-SEV-001")
	require.NoError(t, s.Start())
	require.NoError(t, s.Tick())
	require.NoError(t, s.Tick())

	clientElapsed := 99
	entry, err := s.LogAction(domain.ActionInput{
		ActionID:          "check_vitals",
		PerformedBy:       "student-1",
		Parameters:        map[string]any{"site": "left arm"},
		ClientElapsedTime: &clientElapsed,
	})
	require.NoError(t, err)

	assert.Equal(t, "Check Vital Signs", entry.ActionLabel)
	assert.Equal(t, domain.DimensionAssessment, entry.Dimension)
	assert.Equal(t, 2, entry.ElapsedTime, "server clock is authoritative")
	assert.Equal(t, 99, *entry.ClientElapsedTime)
	assert.True(t, entry.IsCriticalAction)
	require.NotNil(t, entry.CriticalActionID)
	assert.Equal(t, "ca2", *entry.CriticalActionID)
	assert.True(t, entry.Success)

	performed := sink.Named(domain.EventActionPerformed)
	require.Len(t, performed, 1)
	assert.Equal(t, entry, performed[0].Data.(domain.ActionPerformedData).Entry)
}

func TestLogAction_NonCriticalNeedsDimension(t *testing.T) {
	s, _, _ := newTestSession(t, "ASTHMA-SEV-001")
	require.NoError(t, s.Start())

	_, err := s.LogAction(action("reposition_patient"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.LogAction(domain.ActionInput{ActionID: "reposition_patient", Dimension: "COMFORT"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	entry, err := s.LogAction(domain.ActionInput{ActionID: "reposition_patient", Dimension: domain.DimensionIntervention})
	require.NoError(t, err)
	assert.False(t, entry.IsCriticalAction)
	assert.Nil(t, entry.CriticalActionID)
	assert.Equal(t, "reposition_patient", entry.ActionLabel)
}

func TestAlbuterolProgression(t *testing.T) {
	s, sink, _ := newTestSession(t, "ASTHMA-SEV-001")
	require.NoError(t, s.Start())
	assert.Equal(t, "A1", s.CurrentNodeID())

	_, err := s.LogAction(action("admin_albuterol"))
	require.NoError(t, err)
	_, err = s.LogAction(action("admin_albuterol"))
	require.NoError(t, err)

	v := s.Vitals()
	assert.Equal(t, 97.0, v.HeartRate)
	assert.Equal(t, 95.0, v.OxygenSaturation)
	assert.Equal(t, 24.0, v.RespiratoryRate)
	assert.Equal(t, 138.0, v.BloodPressure.Systolic)
	assert.Equal(t, "B1", s.CurrentNodeID())

	changes := sink.Named(domain.EventStateChange)
	require.Len(t, changes, 1)
	data := changes[0].Data.(domain.StateChangeData)
	assert.Equal(t, "A1", data.FromNodeID)
	assert.Equal(t, "B1", data.NodeID)
	assert.Equal(t, 97.0, data.Vitals.HeartRate)

	commands := sink.Named(domain.EventManikinCommand)
	require.Len(t, commands, 1)
	assert.Equal(t, "DECREASE_WHEEZE_VOLUME", commands[0].Data.(domain.ManikinCommandData).Action)

	assert.Len(t, s.ActionLog(), 2)
	assert.Equal(t, []string{"ca5"}, s.CompletedCriticalActionIDs())
}

func TestAlbuterolProgression_ConcurrentSubmissions(t *testing.T) {
	s, sink, _ := newTestSession(t, "ASTHMA-SEV-001")
	require.NoError(t, s.Start())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.LogAction(action("admin_albuterol"))
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Tick()
		}()
	}
	wg.Wait()

	v := s.Vitals()
	assert.Equal(t, 97.0, v.HeartRate)
	assert.Equal(t, 95.0, v.OxygenSaturation)
	assert.Equal(t, 24.0, v.RespiratoryRate)
	assert.Equal(t, "B1", s.CurrentNodeID())
	assert.Len(t, sink.Named(domain.EventStateChange), 1)
	assert.Len(t, s.ActionLog(), 20)

	for _, e := range s.ActionLog() {
		assert.LessOrEqual(t, e.ElapsedTime, s.ElapsedTime())
	}
}

func TestDuplicateCriticalActionCountsOnce(t *testing.T) {
	s, _, _ := newTestSession(t, "ASTHMA-SEV-001")
	require.NoError(t, s.Start())

	_, err := s.LogAction(action("hand_hygiene"))
	require.NoError(t, err)
	before := len(s.CompletedCriticalActionIDs())

	_, err = s.LogAction(action("hand_hygiene"))
	require.NoError(t, err)
	_, err = s.LogAction(action("hand_hygiene"))
	require.NoError(t, err)

	assert.Len(t, s.ActionLog(), 3)
	assert.Len(t, s.CompletedCriticalActionIDs(), before)
	assert.Equal(t, 1, s.Results().CriticalActionsCompleted)
}

func TestFourOfSixCriticalActions(t *testing.T) {
	s, _, _ := newTestSession(t, "TOX-OPIOID-001")
	require.NoError(t, s.Start())

	for _, id := range []string{"bag_mask", "apply_o2", "admin_narcan", "start_iv"} {
		_, err := s.LogAction(action(id))
		require.NoError(t, err)
	}
	for _, id := range []string{"talk_to_patient", "check_pupils", "apply_o2"} {
		_, err := s.LogAction(domain.ActionInput{ActionID: id, Dimension: domain.DimensionAssessment})
		require.NoError(t, err)
	}

	res, err := s.End("")
	require.NoError(t, err)
	assert.Equal(t, 4, res.CriticalActionsCompleted)
	assert.Equal(t, 6, res.CriticalActionsTotal)
	assert.Equal(t, 7, res.TotalActions)
	assert.ElementsMatch(t, []string{"ca5", "ca6"}, res.MissedCriticalActionIDs)
	assert.False(t, res.Passed)
	assert.Equal(t, OutcomeFail, res.Outcome)
}

func TestOpioidProgression_FindingsAndSpeech(t *testing.T) {
	s, sink, _ := newTestSession(t, "TOX-OPIOID-001")
	require.NoError(t, s.Start())

	_, err := s.LogAction(action("admin_narcan"))
	require.NoError(t, err)

	v := s.Vitals()
	assert.Equal(t, 82.0, v.HeartRate)
	assert.Equal(t, 16.0, v.RespiratoryRate)
	assert.Equal(t, 93.0, v.OxygenSaturation)

	loc, ok := s.Findings().Get(domain.FindingPath{"neurological", "levelOfConsciousness"})
	require.True(t, ok)
	assert.Equal(t, "Awakening, agitated", loc)

	snap, err := s.Snapshot(domain.RoleExaminee)
	require.NoError(t, err)
	assert.True(t, snap.CurrentState.Exhausted)
	assert.Equal(t, "B1", snap.CurrentState.CurrentNodeID)

	speech := sink.Named(domain.EventPatientSpeak)
	require.Len(t, speech, 1)
	assert.Equal(t, "agitated", speech[0].Data.(domain.PatientSpeech).Mood)
}

func TestProgression_LeafConflictAppliesNothing(t *testing.T) {
	s, sink, _ := newTestSession(t, "TOX-OPIOID-001")
	require.NoError(t, s.Start())
	require.NoError(t, s.UpdateFinding(domain.FindingPath{"neurological"}, "see notes"))
	before := s.Vitals()

	_, err := s.LogAction(action("admin_narcan"))
	require.NoError(t, err, "the action itself is still logged")

	assert.Equal(t, before, s.Vitals())
	assert.Equal(t, "A1", s.CurrentNodeID())
	assert.Empty(t, sink.Named(domain.EventStateChange))
	assert.Len(t, s.ActionLog(), 1)
}

func TestRequestLab(t *testing.T) {
	s, _, _ := newTestSession(t, "ASTHMA-SEV-001")

	_, err := s.RequestLab("abg", "student-1")
	assert.ErrorIs(t, err, domain.ErrSimulationNotActive)

	require.NoError(t, s.Start())
	req, err := s.RequestLab("abg", "student-1")
	require.NoError(t, err)
	assert.False(t, req.Revealed)
	assert.Equal(t, "request_abg", req.Entry.ActionID)
	assert.Equal(t, domain.DimensionTestsDiagnostics, req.Entry.Dimension)

	_, err = s.RevealLab("abg", nil)
	require.NoError(t, err)
	req, err = s.RequestLab("abg", "student-1")
	require.NoError(t, err)
	assert.True(t, req.Revealed)
	assert.NotNil(t, req.Results)
}

func TestAdvanceProgression_Manual(t *testing.T) {
	sc := seedScenario(t, "ASTHMA-SEV-001")
	sc.ProgressionMap = []domain.ProgressionNode{
		{NodeID: "M1", WaitingFor: domain.WaitingFor{Type: domain.TriggerManual}, Outcomes: []domain.Outcome{{
			NextStateID: "M2",
			Consequence: domain.Consequence{VitalsChange: &domain.VitalsPatch{PainLevel: domain.Float(3)}},
		}}},
		{NodeID: "M2", WaitingFor: domain.WaitingFor{Type: domain.TriggerAction, Action: "x"}, Outcomes: []domain.Outcome{{NextStateID: "END"}}},
	}
	s, err := New("sess-m", "MAN234", sc, Options{})
	require.NoError(t, err)
	defer s.Dispose()

	_, err = s.AdvanceProgression()
	assert.ErrorIs(t, err, domain.ErrSimulationNotActive)

	require.NoError(t, s.Start())
	node, err := s.AdvanceProgression()
	require.NoError(t, err)
	assert.Equal(t, "M2", node)
	assert.Equal(t, 5.0, s.Vitals().PainLevel)

	_, err = s.AdvanceProgression()
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLogAction_FailureOutcomeNotTakenOnAction(t *testing.T) {
	sc := seedScenario(t, "ASTHMA-SEV-001")
	sc.ProgressionMap = []domain.ProgressionNode{{
		NodeID:     "A1",
		WaitingFor: domain.WaitingFor{Type: domain.TriggerAction, Action: "admin_albuterol"},
		Outcomes: []domain.Outcome{
			{TriggerCondition: "FAILURE", NextStateID: "FAIL"},
			{TriggerCondition: "SUCCESS", NextStateID: "B1"},
		},
	}}
	s, err := New("sess-f", "FAL234", sc, Options{})
	require.NoError(t, err)
	defer s.Dispose()

	require.NoError(t, s.Start())
	_, err = s.LogAction(action("admin_albuterol"))
	require.NoError(t, err)
	assert.Equal(t, "B1", s.CurrentNodeID())
}
