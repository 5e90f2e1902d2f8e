package planning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akarpov/planboard/internal/domain"
)

func openIssue(id int64, assignee string, weight int) domain.Issue {
	return domain.Issue{ID: id, IID: id, State: domain.IssueOpen, Assignee: assignee, Weight: ip(weight)}
}

func TestWorkloadDistributionWeeklyDenominator(t *testing.T) {
	// no iteration in flight, so weekly hours are the denominator
	s := newTestService(t, member("ada", 40), member("ben", 40)).withIssues(t,
		openIssue(1, "ada", 3),
		openIssue(2, "ada", 2),
		openIssue(3, "ben", 8),
	)
	out, err := s.WorkloadDistribution(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)

	ada := out[0]
	assert.Equal(t, "ada", ada.Username)
	assert.Equal(t, 2, ada.OpenIssues)
	assert.Equal(t, 5.0, ada.Units)
	// static 6h/point with no history
	assert.Equal(t, 30.0, ada.HoursAllocated)
	assert.Equal(t, 40.0, ada.FinalHours)
	assert.Equal(t, 75, ada.Utilization)
	assert.Equal(t, domain.StatusBusy, ada.Status)
	assert.Equal(t, domain.SourceStatic, ada.VelocitySource)

	ben := out[1]
	assert.Equal(t, 120, ben.Utilization)
	assert.Equal(t, domain.StatusOverloaded, ben.Status)
}

func TestWorkloadDistributionUsesCurrentIterationCapacity(t *testing.T) {
	ctx := context.Background()
	// clock is 2025-03-28, inside this iteration
	it := domain.Iteration{ID: "9", Name: "Sprint 9", StartDay: day(2025, 3, 17), DueDay: day(2025, 3, 28)}
	s := newTestService(t, member("ada", 40)).
		withIterations(t, it).
		withIssues(t, openIssue(1, "ada", 10))
	// three working days out: final capacity 80-24 = 56
	_, err := s.AddAbsence(ctx, "ada", day(2025, 3, 19), day(2025, 3, 21), domain.AbsenceVacation, "")
	require.NoError(t, err)

	out, err := s.WorkloadDistribution(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 56.0, out[0].FinalHours)
	assert.Equal(t, 60.0, out[0].HoursAllocated)
	assert.Equal(t, 107, out[0].Utilization)
	assert.Equal(t, domain.StatusOverloaded, out[0].Status)
}

func TestWorkloadZeroCapacityWithWorkIsOverloaded(t *testing.T) {
	s := newTestService(t, member("ada", 0)).withIssues(t, openIssue(1, "ada", 1))
	out, err := s.WorkloadDistribution(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 0, out[0].Utilization)
	assert.Equal(t, domain.StatusOverloaded, out[0].Status)
}

func TestWorkloadZeroCapacityNoWorkIsAvailable(t *testing.T) {
	s := newTestService(t, member("ada", 0))
	out, err := s.WorkloadDistribution(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.StatusAvailable, out[0].Status)
}

func TestStatusBandBoundaries(t *testing.T) {
	assert.Equal(t, domain.StatusAvailable, domain.StatusForUtilization(59))
	assert.Equal(t, domain.StatusBusy, domain.StatusForUtilization(60))
	assert.Equal(t, domain.StatusBusy, domain.StatusForUtilization(79))
	assert.Equal(t, domain.StatusAtCapacity, domain.StatusForUtilization(80))
	assert.Equal(t, domain.StatusAtCapacity, domain.StatusForUtilization(99))
	assert.Equal(t, domain.StatusOverloaded, domain.StatusForUtilization(100))
}

func TestBurnoutRisksScoring(t *testing.T) {
	ctx := context.Background()
	created := day(2025, 1, 27) // 60 days before the fixed clock
	issues := make([]domain.Issue, 0, 12)
	for i := int64(1); i <= 12; i++ {
		is := domain.Issue{ID: i, IID: i, State: domain.IssueOpen, Assignee: "ben", CreatedAt: tp(created)}
		if i <= 4 {
			is.DueDay = tp(day(2025, 3, 20)) // overdue
		}
		issues = append(issues, is)
	}
	s := newTestService(t, member("ada", 40), member("ben", 40), member("cara", 40)).
		withIssues(t, issues...)

	out, err := s.BurnoutRisks(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	ben := out[0]
	assert.Equal(t, "ben", ben.Username)
	// 30 (>1.5x avg open) + 20 (overdue) + 15 (stale) + 30 (>2x avg open);
	// the points factor stays silent because nobody carries points
	assert.Equal(t, 95, ben.Score)
	assert.Equal(t, domain.RiskHigh, ben.Level)
	assert.Len(t, ben.Factors, 4)
}

func TestBurnoutExcludesMembersOnLeave(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, member("ada", 40), member("ben", 40)).withIssues(t,
		openIssue(1, "ben", 1), openIssue(2, "ben", 1), openIssue(3, "ben", 1),
	)
	// ben is out today, so nothing should be scored against them
	_, err := s.AddAbsence(ctx, "ben", day(2025, 3, 24), day(2025, 3, 31), domain.AbsenceVacation, "")
	require.NoError(t, err)

	out, err := s.BurnoutRisks(ctx)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestBurnoutEvenLoadProducesNoRisks(t *testing.T) {
	s := newTestService(t, member("ada", 40), member("ben", 40)).withIssues(t,
		openIssue(1, "ada", 3), openIssue(2, "ben", 3),
	)
	out, err := s.BurnoutRisks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out)
}
