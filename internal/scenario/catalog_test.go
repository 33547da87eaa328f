package scenario

import (
	"context"
	"testing"
	"time"

	"github.com/Naser58164/praxis-medius/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCatalog() *Catalog {
	c := NewCatalog(NewMemoryRepository(), zap.NewNop())
	c.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return c
}

func minimalScenario(id string) *domain.Scenario {
	return &domain.Scenario{
		ID:            id,
		Title:         "Minimal",
		InitialVitals: domain.Vitals{HeartRate: 80, OxygenSaturation: 98, RespiratoryRate: 16, Temperature: 37},
		CriticalActions: []domain.CriticalAction{
			{ID: "ca1", ActionID: "hand_hygiene", Label: "Hand hygiene", Dimension: domain.DimensionSafety, Required: true},
		},
	}
}

func TestLoadSeeds_AllValid(t *testing.T) {
	seeds, err := LoadSeeds()
	require.NoError(t, err)
	require.Len(t, seeds, 2)

	ids := map[string]bool{}
	for _, s := range seeds {
		require.NoError(t, Validate(s), s.ID)
		ids[s.ID] = true
	}
	assert.True(t, ids["ASTHMA-SEV-001"])
	assert.True(t, ids["TOX-OPIOID-001"])
}

func TestCatalog_SeedIsIdempotent(t *testing.T) {
	c := newTestCatalog()
	ctx := context.Background()

	n, err := c.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	asthma, err := c.Get(ctx, "ASTHMA-SEV-001")
	require.NoError(t, err)
	assert.Equal(t, 1, asthma.Version)
	assert.Equal(t, 112.0, asthma.InitialVitals.HeartRate)
	assert.Len(t, asthma.CriticalActions, 6)
}

func TestCatalog_CreateAssignsIDAndVersion(t *testing.T) {
	c := newTestCatalog()
	s := minimalScenario("")

	created, err := c.Create(context.Background(), s)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 1, created.Version)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Empty(t, s.ID, "input must not be modified")
}

func TestCatalog_CreateDuplicate(t *testing.T) {
	c := newTestCatalog()
	ctx := context.Background()

	_, err := c.Create(ctx, minimalScenario("S1"))
	require.NoError(t, err)
	_, err = c.Create(ctx, minimalScenario("S1"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCatalog_UpdateCreatesNewVersion(t *testing.T) {
	c := newTestCatalog()
	ctx := context.Background()

	v1, err := c.Create(ctx, minimalScenario("S1"))
	require.NoError(t, err)

	changed := minimalScenario("ignored")
	changed.Title = "Revised"
	v2, err := c.Update(ctx, "S1", changed)
	require.NoError(t, err)
	assert.Equal(t, "S1", v2.ID)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, v1.CreatedAt, v2.CreatedAt)

	old, err := c.GetVersion(ctx, "S1", 1)
	require.NoError(t, err)
	assert.Equal(t, "Minimal", old.Title)

	latest, err := c.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "Revised", latest.Title)
}

func TestCatalog_UpdateUnknown(t *testing.T) {
	c := newTestCatalog()
	_, err := c.Update(context.Background(), "nope", minimalScenario("nope"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCatalog_GetReturnsCopy(t *testing.T) {
	c := newTestCatalog()
	ctx := context.Background()
	_, err := c.Create(ctx, minimalScenario("S1"))
	require.NoError(t, err)

	got, err := c.Get(ctx, "S1")
	require.NoError(t, err)
	got.CriticalActions[0].ActionID = "mutated"

	again, err := c.Get(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "hand_hygiene", again.CriticalActions[0].ActionID)
}

func TestCatalog_Delete(t *testing.T) {
	c := newTestCatalog()
	ctx := context.Background()
	_, err := c.Create(ctx, minimalScenario("S1"))
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, "S1"))
	_, err = c.Get(ctx, "S1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, c.Delete(ctx, "S1"), domain.ErrNotFound)
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(s *domain.Scenario){
		"missing title": func(s *domain.Scenario) { s.Title = "" },
		"unknown dimension": func(s *domain.Scenario) {
			s.CriticalActions[0].Dimension = "VIBES"
		},
		"duplicate critical id": func(s *domain.Scenario) {
			s.CriticalActions = append(s.CriticalActions, domain.CriticalAction{ID: "ca1", ActionID: "other", Dimension: domain.DimensionSafety})
		},
		"duplicate critical action": func(s *domain.Scenario) {
			s.CriticalActions = append(s.CriticalActions, domain.CriticalAction{ID: "ca2", ActionID: "hand_hygiene", Dimension: domain.DimensionSafety})
		},
		"bad finding key": func(s *domain.Scenario) {
			s.InitialFindings = domain.Findings{"respiratory": map[string]any{"breath sounds": "clear"}}
		},
		"findings change outside schema": func(s *domain.Scenario) {
			s.FindingsSchema = domain.FindingsSchema{{"respiratory"}}
			s.ProgressionMap = []domain.ProgressionNode{{
				NodeID:     "A1",
				WaitingFor: domain.WaitingFor{Type: domain.TriggerManual},
				Outcomes: []domain.Outcome{{
					NextStateID: "B1",
					Consequence: domain.Consequence{FindingsChange: map[string]any{"cardiac.rhythm": "afib"}},
				}},
			}}
		},
		"cyclic progression": func(s *domain.Scenario) {
			s.ProgressionMap = []domain.ProgressionNode{
				{NodeID: "A1", WaitingFor: domain.WaitingFor{Type: domain.TriggerManual}, Outcomes: []domain.Outcome{{NextStateID: "B1"}}},
				{NodeID: "B1", WaitingFor: domain.WaitingFor{Type: domain.TriggerTime, Seconds: 10}, Outcomes: []domain.Outcome{{NextStateID: "A1"}}},
			}
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := minimalScenario("S1")
			mutate(s)
			assert.ErrorIs(t, Validate(s), domain.ErrValidation)
		})
	}
}
