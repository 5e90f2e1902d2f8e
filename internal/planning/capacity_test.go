package planning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akarpov/planboard/internal/domain"
)

var sprint7 = domain.Iteration{ID: "701", Name: "Sprint 7", StartDay: day(2025, 3, 3), DueDay: day(2025, 3, 14)}

func TestResolveCapacityBase(t *testing.T) {
	// two full weeks at 40h/week, no absences
	got := resolveCapacity(sprint7, domain.TeamMember{Username: "ada"}, 40, nil, nil)
	assert.Equal(t, 10, got.WorkingDays)
	assert.Equal(t, 80.0, got.BaseHours)
	assert.Equal(t, 0.0, got.AbsenceHoursLost)
	assert.Equal(t, 80.0, got.AutoAdjustedHours)
	assert.Equal(t, 80.0, got.FinalHours)
}

func TestResolveCapacityAbsenceLoss(t *testing.T) {
	absences := []domain.Absence{
		{Username: "ada", StartDay: day(2025, 3, 5), EndDay: day(2025, 3, 7)},
	}
	got := resolveCapacity(sprint7, domain.TeamMember{Username: "ada"}, 40, absences, nil)
	assert.Equal(t, 3, got.WorkingDaysLost)
	assert.Equal(t, 24.0, got.AbsenceHoursLost)
	assert.Equal(t, 56.0, got.AutoAdjustedHours)
	assert.Equal(t, 56.0, got.FinalHours)
}

func TestResolveCapacityWeekendOnlyAbsence(t *testing.T) {
	absences := []domain.Absence{
		{Username: "ada", StartDay: day(2025, 3, 8), EndDay: day(2025, 3, 9)},
	}
	got := resolveCapacity(sprint7, domain.TeamMember{Username: "ada"}, 40, absences, nil)
	assert.Equal(t, 0, got.WorkingDaysLost)
	assert.Equal(t, 80.0, got.FinalHours)
}

func TestResolveCapacityOverrideWins(t *testing.T) {
	absences := []domain.Absence{
		{Username: "ada", StartDay: day(2025, 3, 5), EndDay: day(2025, 3, 7)},
	}
	got := resolveCapacity(sprint7, domain.TeamMember{Username: "ada"}, 40, absences, fp(50))
	assert.Equal(t, 56.0, got.AutoAdjustedHours)
	assert.Equal(t, 50.0, got.FinalHours)
	require.NotNil(t, got.ManualOverrideHours)
}

func TestResolveCapacityNeverNegative(t *testing.T) {
	// absent for the whole window plus margins
	absences := []domain.Absence{
		{Username: "ada", StartDay: day(2025, 2, 24), EndDay: day(2025, 3, 21)},
	}
	got := resolveCapacity(sprint7, domain.TeamMember{Username: "ada"}, 40, absences, nil)
	assert.Equal(t, 10, got.WorkingDaysLost)
	assert.Equal(t, 0.0, got.AutoAdjustedHours)
	assert.Equal(t, 0.0, got.FinalHours)
}

func TestResolveCapacityZeroWeeklyHours(t *testing.T) {
	got := resolveCapacity(sprint7, domain.TeamMember{Username: "ada"}, 0, nil, nil)
	assert.Equal(t, 0.0, got.BaseHours)
	assert.Equal(t, 0.0, got.FinalHours)
}

func TestResolveCapacityLossRoundsToOneDecimal(t *testing.T) {
	// 37h week: 7.4h/day, 3 days lost = 22.2
	absences := []domain.Absence{
		{Username: "ada", StartDay: day(2025, 3, 5), EndDay: day(2025, 3, 7)},
	}
	got := resolveCapacity(sprint7, domain.TeamMember{Username: "ada"}, 37, absences, nil)
	assert.Equal(t, 22.2, got.AbsenceHoursLost)
	assert.Equal(t, 74.0, got.BaseHours)
	assert.InDelta(t, 51.8, got.AutoAdjustedHours, 1e-9)
}

func TestCapacityBreakdown(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, member("ada", 40), member("ben", 40)).withIterations(t, sprint7)
	_, err := s.AddAbsence(ctx, "ben", day(2025, 3, 5), day(2025, 3, 7), domain.AbsenceVacation, "")
	require.NoError(t, err)

	out, err := s.CapacityBreakdown(ctx, "Sprint 7")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "ada", out[0].Username)
	assert.Equal(t, 80.0, out[0].FinalHours)
	assert.Equal(t, "ben", out[1].Username)
	assert.Equal(t, 56.0, out[1].FinalHours)

	_, err = s.CapacityBreakdown(ctx, "Sprint 99")
	require.ErrorIs(t, err, domain.ErrUnknownIteration)
}

func TestManualOverrideLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, member("ada", 40)).withIterations(t, sprint7)

	require.NoError(t, s.SetManualOverride(ctx, "701", "ada", fp(50)))
	got, err := s.MemberCapacity(ctx, "Sprint 7", "ada")
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.FinalHours)

	// clearing resumes auto-adjustment
	require.NoError(t, s.SetManualOverride(ctx, "701", "ada", nil))
	got, err = s.MemberCapacity(ctx, "Sprint 7", "ada")
	require.NoError(t, err)
	assert.Equal(t, 80.0, got.FinalHours)

	require.ErrorIs(t, s.SetManualOverride(ctx, "701", "ghost", fp(10)), domain.ErrUnknownMember)
	require.ErrorIs(t, s.SetManualOverride(ctx, "nope", "ada", fp(10)), domain.ErrUnknownIteration)
	require.ErrorIs(t, s.SetManualOverride(ctx, "701", "ada", fp(-1)), domain.ErrPolicyViolation)
}
