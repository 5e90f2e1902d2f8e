package planning

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/akarpov/planboard/internal/calendar"
	"github.com/akarpov/planboard/internal/domain"
)

// currentIteration picks the iteration whose window contains today,
// preferring the one that ends soonest when several overlap.
func currentIteration(snap Snapshot, today time.Time) (domain.Iteration, bool) {
	var best domain.Iteration
	found := false
	for _, it := range snap.Iterations {
		if it.StartDay.IsZero() || it.DueDay.IsZero() {
			continue
		}
		if today.Before(it.StartDay) || today.After(it.DueDay) {
			continue
		}
		if !found || it.DueDay.Before(best.DueDay) {
			best = it
			found = true
		}
	}
	return best, found
}

// WorkloadDistribution prices every active member's open issues at their
// effective velocity and compares the result to their capacity. The
// denominator is the current iteration's final hours when an iteration is
// in flight, the plain weekly hours otherwise.
func (s *Service) WorkloadDistribution(ctx context.Context) ([]domain.MemberWorkload, error) {
	snap := s.snapshot()
	pol := s.policySnapshot()
	absences, err := s.absences.All(ctx)
	if err != nil {
		return nil, err
	}
	overrides, err := s.loadOverrides(ctx)
	if err != nil {
		return nil, err
	}
	records := velocityRecords(snap, absences, pol)

	today := calendar.Day(s.now())
	cur, inIteration := currentIteration(snap, today)

	members := activeMembers(snap)
	out := make([]domain.MemberWorkload, 0, len(members))
	for _, m := range members {
		open := 0
		units := 0.0
		for _, is := range snap.Issues {
			if is.Closed() || is.Assignee != m.Username {
				continue
			}
			open++
			if pol.MetricType == domain.MetricPoints {
				units += float64(is.StoryPoints())
			} else {
				units++
			}
		}
		ev := effectiveVelocity(records, m.Username, pol)
		alloc := units * ev.HoursPerUnit

		weekly := m.HoursOrDefault(pol.DefaultWeeklyCapacity)
		final := weekly
		if inIteration {
			var override *float64
			if v, ok := overrides[overrideKey(cur.ID, m.Username)]; ok {
				h := v
				override = &h
			}
			final = resolveCapacity(cur, m, weekly, absences, override).FinalHours
		}

		util := 0
		if final > 0 {
			util = int(math.Round(100 * alloc / final))
		}
		status := domain.StatusForUtilization(util)
		if final == 0 && alloc > 0 {
			status = domain.StatusOverloaded
		}
		out = append(out, domain.MemberWorkload{
			Username:       m.Username,
			OpenIssues:     open,
			Units:          units,
			HoursAllocated: alloc,
			FinalHours:     final,
			Utilization:    util,
			Status:         status,
			VelocitySource: ev.Source,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Burnout factor weights. Additive; the total decides the level.
const (
	burnoutOpenAboveAvg   = 30 // open issues above 1.5x team average
	burnoutPointsAboveAvg = 25 // assigned points above 1.5x team average
	burnoutOverdue        = 20 // three or more overdue issues
	burnoutStaleIssues    = 15 // mean open-issue age beyond 45 days
	burnoutOpenFarAboveAvg = 30 // open issues above 2x team average
)

// BurnoutRisks scores overload signals across the active roster. Members
// on leave today are excluded both from scoring and from the averages.
func (s *Service) BurnoutRisks(ctx context.Context) ([]domain.BurnoutRisk, error) {
	snap := s.snapshot()
	absences, err := s.absences.All(ctx)
	if err != nil {
		return nil, err
	}
	today := calendar.Day(s.now())
	onLeave := func(username string) bool {
		for _, a := range absences {
			if a.Username == username && !today.Before(a.StartDay) && !today.After(a.EndDay) {
				return true
			}
		}
		return false
	}

	type memberLoad struct {
		username string
		open     int
		points   float64
		overdue  int
		ageSum   float64
		ageN     int
	}
	var loads []memberLoad
	for _, m := range activeMembers(snap) {
		if onLeave(m.Username) {
			continue
		}
		ld := memberLoad{username: m.Username}
		for _, is := range snap.Issues {
			if is.Closed() || is.Assignee != m.Username {
				continue
			}
			ld.open++
			ld.points += float64(is.StoryPoints())
			if is.DueDay != nil && is.DueDay.Before(today) {
				ld.overdue++
			}
			if is.CreatedAt != nil {
				ld.ageSum += today.Sub(calendar.Day(*is.CreatedAt)).Hours() / 24
				ld.ageN++
			}
		}
		loads = append(loads, ld)
	}
	if len(loads) == 0 {
		return nil, nil
	}

	var avgOpen, avgPoints float64
	for _, ld := range loads {
		avgOpen += float64(ld.open)
		avgPoints += ld.points
	}
	avgOpen /= float64(len(loads))
	avgPoints /= float64(len(loads))

	var out []domain.BurnoutRisk
	for _, ld := range loads {
		score := 0
		var factors []string
		if avgOpen > 0 && float64(ld.open) > 1.5*avgOpen {
			score += burnoutOpenAboveAvg
			factors = append(factors, fmt.Sprintf("%d open issues, above 1.5x team average of %.1f", ld.open, avgOpen))
		}
		if avgPoints > 0 && ld.points > 1.5*avgPoints {
			score += burnoutPointsAboveAvg
			factors = append(factors, fmt.Sprintf("%.0f assigned points, above 1.5x team average of %.1f", ld.points, avgPoints))
		}
		if ld.overdue >= 3 {
			score += burnoutOverdue
			factors = append(factors, fmt.Sprintf("%d overdue issues", ld.overdue))
		}
		if ld.ageN > 0 && ld.ageSum/float64(ld.ageN) > 45 {
			score += burnoutStaleIssues
			factors = append(factors, fmt.Sprintf("open issues average %.0f days old", ld.ageSum/float64(ld.ageN)))
		}
		if avgOpen > 0 && float64(ld.open) > 2*avgOpen {
			score += burnoutOpenFarAboveAvg
			factors = append(factors, fmt.Sprintf("%d open issues, above 2x team average of %.1f", ld.open, avgOpen))
		}

		var level domain.RiskLevel
		switch {
		case score >= 60:
			level = domain.RiskHigh
		case score >= 40:
			level = domain.RiskMedium
		case score >= 30:
			level = domain.RiskLow
		default:
			continue
		}
		out = append(out, domain.BurnoutRisk{Username: ld.username, Score: score, Level: level, Factors: factors})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}
