package planning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akarpov/planboard/internal/domain"
)

// fixed clock 2025-03-28 puts the forecast origin on Monday 2025-03-24

func TestForecastWeeksAreMondayAnchored(t *testing.T) {
	s := newTestService(t, member("ada", 40))
	out, err := s.Forecast(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, day(2025, 3, 24), out[0].WeekStart)
	assert.Equal(t, day(2025, 3, 30), out[0].WeekEnd)
	assert.Equal(t, day(2025, 3, 31), out[1].WeekStart)
	assert.Equal(t, 1, out[0].Week)
	assert.Equal(t, 2, out[1].Week)
}

func TestForecastBaselineCapacity(t *testing.T) {
	s := newTestService(t, member("ada", 40), member("ben", 40))
	out, err := s.Forecast(context.Background(), 3)
	require.NoError(t, err)
	for _, w := range out {
		assert.Equal(t, 80.0, w.TotalCapacity)
		assert.Equal(t, 80.0, w.EffectiveCapacity)
		assert.Equal(t, 0.0, w.EstimatedWorkload)
		assert.Equal(t, domain.StatusAvailable, w.Status)
	}
}

func TestForecastAbsencesReduceEffectiveCapacity(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, member("ada", 40), member("ben", 40))
	// ada out Mon-Wed of the second forecast week
	_, err := s.AddAbsence(ctx, "ada", day(2025, 3, 31), day(2025, 4, 2), domain.AbsenceVacation, "")
	require.NoError(t, err)

	out, err := s.Forecast(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 80.0, out[0].EffectiveCapacity)
	assert.Equal(t, 80.0, out[1].TotalCapacity)
	assert.Equal(t, 56.0, out[1].EffectiveCapacity)
}

func TestForecastPricesDueIssues(t *testing.T) {
	s := newTestService(t, member("ada", 40)).withIssues(t,
		domain.Issue{ID: 1, IID: 1, State: domain.IssueOpen, Assignee: "ada", Weight: ip(4), DueDay: tp(day(2025, 3, 26))},
		domain.Issue{ID: 2, IID: 2, State: domain.IssueOpen, Assignee: "ada", Weight: ip(2), DueDay: tp(day(2025, 4, 10))},
		domain.Issue{ID: 3, IID: 3, State: domain.IssueClosed, Assignee: "ada", Weight: ip(9), DueDay: tp(day(2025, 3, 26))},
	)
	out, err := s.Forecast(context.Background(), 3)
	require.NoError(t, err)
	// no history, so the static 6h/point rate prices the backlog
	assert.Equal(t, 24.0, out[0].EstimatedWorkload)
	assert.Equal(t, 0.0, out[1].EstimatedWorkload)
	assert.Equal(t, 12.0, out[2].EstimatedWorkload)
	assert.Equal(t, 60, out[0].Utilization)
	assert.Equal(t, domain.StatusBusy, out[0].Status)
}

func TestForecastMarksIterationMilestones(t *testing.T) {
	s := newTestService(t, member("ada", 40)).withIterations(t,
		domain.Iteration{ID: "9", Name: "Sprint 9", StartDay: day(2025, 3, 17), DueDay: day(2025, 3, 28)},
	)
	out, err := s.Forecast(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sprint 9"}, out[0].Milestones)
	assert.Empty(t, out[1].Milestones)
}

func TestForecastRejectsNonPositiveWeeks(t *testing.T) {
	s := newTestService(t, member("ada", 40))
	_, err := s.Forecast(context.Background(), 0)
	require.ErrorIs(t, err, domain.ErrPolicyViolation)
}

func TestScenarioHireWithRampUp(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, member("ada", 40), member("ben", 40))
	sc, err := s.SaveScenario(ctx, domain.Scenario{
		Name: "Hire Chad",
		Changes: []domain.TeamChange{
			{Week: 2, Kind: domain.ChangeHire, Username: "chad", WeeklyHours: 40, RampUpWeeks: 4},
		},
	})
	require.NoError(t, err)

	out, err := s.ScenarioForecast(ctx, sc.ID, 6)
	require.NoError(t, err)
	want := []float64{80, 90, 100, 110, 120, 120}
	for i, w := range out {
		assert.Equal(t, want[i], w.TotalCapacity, "week %d", i+1)
	}
	assert.Empty(t, out[0].Events)
	require.Len(t, out[1].Events, 1)
	assert.Contains(t, out[1].Events[0], "chad")
}

func TestScenarioDepartureAndCapacityChange(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, member("ada", 40), member("ben", 40))
	sc, err := s.SaveScenario(ctx, domain.Scenario{
		Name: "Shrink",
		Changes: []domain.TeamChange{
			{Week: 2, Kind: domain.ChangeCapacityChange, Username: "ada", WeeklyHours: 20},
			{Week: 3, Kind: domain.ChangeDeparture, Username: "ben"},
		},
	})
	require.NoError(t, err)

	out, err := s.ScenarioForecast(ctx, sc.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 80.0, out[0].TotalCapacity)
	assert.Equal(t, 60.0, out[1].TotalCapacity)
	assert.Equal(t, 20.0, out[2].TotalCapacity)
	assert.Equal(t, 20.0, out[3].TotalCapacity)
}

func TestScenarioWithNoChangesMatchesBaseline(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, member("ada", 40), member("ben", 32)).withIssues(t,
		domain.Issue{ID: 1, IID: 1, State: domain.IssueOpen, Assignee: "ada", Weight: ip(3), DueDay: tp(day(2025, 3, 26))},
	)
	sc, err := s.SaveScenario(ctx, domain.Scenario{Name: "No-op"})
	require.NoError(t, err)

	baseline, err := s.Forecast(ctx, 4)
	require.NoError(t, err)
	scenario, err := s.ScenarioForecast(ctx, sc.ID, 4)
	require.NoError(t, err)
	require.Len(t, scenario, len(baseline))
	for i := range baseline {
		assert.Equal(t, baseline[i].TotalCapacity, scenario[i].TotalCapacity, "week %d", i+1)
		assert.Equal(t, baseline[i].EffectiveCapacity, scenario[i].EffectiveCapacity, "week %d", i+1)
		assert.Equal(t, baseline[i].EstimatedWorkload, scenario[i].EstimatedWorkload, "week %d", i+1)
		assert.Equal(t, baseline[i].Status, scenario[i].Status, "week %d", i+1)
	}
}

func TestScenarioRampFactorNeverExceedsOne(t *testing.T) {
	sc := &domain.Scenario{
		Baseline: []domain.BaselineMember{{Username: "ada", WeeklyHours: 40}},
		Changes: []domain.TeamChange{
			{Week: 3, Kind: domain.ChangeHire, Username: "chad", WeeklyHours: 40, RampUpWeeks: 5},
		},
	}
	for week := 1; week <= 12; week++ {
		for _, e := range scenarioRosterAt(sc, week) {
			assert.LessOrEqual(t, e.factor, 1.0, "week %d member %s", week, e.username)
			assert.Greater(t, e.factor, 0.0)
		}
	}
	// fully ramped from week startWeek+ramp-1 on
	for _, e := range scenarioRosterAt(sc, 7) {
		assert.Equal(t, 1.0, e.factor)
	}
}

func TestScenarioPersistence(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, member("ada", 40))

	sc, err := s.SaveScenario(ctx, domain.Scenario{Name: "Plan B", Changes: []domain.TeamChange{
		{Week: 1, Kind: domain.ChangeDeparture, Username: "ada"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "plan-b", sc.ID)
	// baseline frozen at save time
	require.Len(t, sc.Baseline, 1)
	assert.Equal(t, 40.0, sc.Baseline[0].WeeklyHours)

	list, err := s.ListScenarios(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.BaselineScenarioID, list[0].ID)
	assert.Equal(t, "plan-b", list[1].ID)

	require.NoError(t, s.DeleteScenario(ctx, "plan-b"))
	require.NoError(t, s.DeleteScenario(ctx, "plan-b")) // idempotent
	list, err = s.ListScenarios(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestScenarioBaselineIsImmutable(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, member("ada", 40))
	_, err := s.SaveScenario(ctx, domain.Scenario{ID: domain.BaselineScenarioID, Name: "sneaky"})
	require.ErrorIs(t, err, domain.ErrPolicyViolation)
	_, err = s.SaveScenario(ctx, domain.Scenario{Name: "Baseline"})
	require.ErrorIs(t, err, domain.ErrPolicyViolation)
	require.ErrorIs(t, s.DeleteScenario(ctx, domain.BaselineScenarioID), domain.ErrPolicyViolation)
}

func TestScenarioValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, member("ada", 40))
	_, err := s.SaveScenario(ctx, domain.Scenario{Name: "bad week", Changes: []domain.TeamChange{
		{Week: 0, Kind: domain.ChangeHire, Username: "x", WeeklyHours: 40},
	}})
	require.ErrorIs(t, err, domain.ErrPolicyViolation)
	_, err = s.SaveScenario(ctx, domain.Scenario{Name: "bad kind", Changes: []domain.TeamChange{
		{Week: 1, Kind: "clone", Username: "x"},
	}})
	require.ErrorIs(t, err, domain.ErrPolicyViolation)
}

func TestScenarioForecastUnknownID(t *testing.T) {
	s := newTestService(t, member("ada", 40))
	_, err := s.ScenarioForecast(context.Background(), "missing", 4)
	require.ErrorIs(t, err, domain.ErrUnknownScenario)
}
