package planning

import (
	"context"
	"fmt"
	"math"

	"github.com/akarpov/planboard/internal/calendar"
	"github.com/akarpov/planboard/internal/domain"
)

// rosterEntry is one member's contribution to a forecast week. factor
// carries the ramp-up discount for scenario hires.
type rosterEntry struct {
	username    string
	weeklyHours float64
	factor      float64
}

func baselineRoster(snap Snapshot, pol domain.PolicyConfig) []rosterEntry {
	members := activeMembers(snap)
	out := make([]rosterEntry, 0, len(members))
	for _, m := range members {
		out = append(out, rosterEntry{
			username:    m.Username,
			weeklyHours: m.HoursOrDefault(pol.DefaultWeeklyCapacity),
			factor:      1,
		})
	}
	return out
}

// Forecast projects capacity against the open backlog over Monday-anchored
// weeks starting from the current week.
func (s *Service) Forecast(ctx context.Context, weeks int) ([]domain.ForecastWeek, error) {
	return s.forecast(ctx, nil, weeks)
}

func (s *Service) forecast(ctx context.Context, sc *domain.Scenario, weeks int) ([]domain.ForecastWeek, error) {
	if weeks < 1 {
		return nil, fmt.Errorf("%w: weeks must be positive", domain.ErrPolicyViolation)
	}
	snap := s.snapshot()
	pol := s.policySnapshot()
	absences, err := s.absences.All(ctx)
	if err != nil {
		return nil, err
	}
	records := velocityRecords(snap, absences, pol)
	origin := calendar.WeekStart(s.now())

	out := make([]domain.ForecastWeek, 0, weeks)
	for k := 1; k <= weeks; k++ {
		ws := origin.AddDate(0, 0, 7*(k-1))
		we := ws.AddDate(0, 0, 6)

		var roster []rosterEntry
		if sc != nil {
			roster = scenarioRosterAt(sc, k)
		} else {
			roster = baselineRoster(snap, pol)
		}

		var total, effective float64
		for _, e := range roster {
			if e.factor <= 0 || e.weeklyHours <= 0 {
				continue
			}
			total += e.weeklyHours * e.factor
			lost := float64(absenceWorkingDaysLost(absences, e.username, ws, we)) * (e.weeklyHours / 5.0)
			eff := e.weeklyHours - lost
			if eff < 0 {
				eff = 0
			}
			effective += eff * e.factor
		}

		var workload float64
		var milestones []string
		for _, is := range snap.Issues {
			if is.Closed() || is.DueDay == nil {
				continue
			}
			if is.DueDay.Before(ws) || is.DueDay.After(we) {
				continue
			}
			units := 1.0
			if pol.MetricType == domain.MetricPoints {
				units = float64(is.StoryPoints())
			}
			ev := effectiveVelocity(records, is.Assignee, pol)
			workload += units * ev.HoursPerUnit
		}
		for _, it := range snap.Iterations {
			if !it.DueDay.IsZero() && !it.DueDay.Before(ws) && !it.DueDay.After(we) {
				milestones = append(milestones, it.Name)
			}
		}

		var events []string
		if sc != nil {
			for _, ch := range sc.Changes {
				if ch.Week == k {
					events = append(events, describeChange(ch))
				}
			}
		}

		util := 0
		if effective > 0 {
			util = int(math.Round(100 * workload / effective))
		}
		status := domain.StatusForUtilization(util)
		if effective == 0 && workload > 0 {
			status = domain.StatusOverloaded
		}
		out = append(out, domain.ForecastWeek{
			Week:              k,
			WeekStart:         ws,
			WeekEnd:           we,
			TotalCapacity:     total,
			EffectiveCapacity: effective,
			EstimatedWorkload: workload,
			Utilization:       util,
			Status:            status,
			Milestones:        milestones,
			Events:            events,
		})
	}
	return out, nil
}

func describeChange(ch domain.TeamChange) string {
	switch ch.Kind {
	case domain.ChangeHire:
		if ch.RampUpWeeks > 1 {
			return fmt.Sprintf("%s joins at %.0fh/week, ramping over %d weeks", ch.Username, ch.WeeklyHours, ch.RampUpWeeks)
		}
		return fmt.Sprintf("%s joins at %.0fh/week", ch.Username, ch.WeeklyHours)
	case domain.ChangeDeparture:
		return fmt.Sprintf("%s departs", ch.Username)
	case domain.ChangeCapacityChange:
		return fmt.Sprintf("%s moves to %.0fh/week", ch.Username, ch.WeeklyHours)
	}
	return string(ch.Kind) + " " + ch.Username
}
