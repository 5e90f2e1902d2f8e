package planning

import (
	"context"
	"sort"
	"time"

	"github.com/akarpov/planboard/internal/calendar"
	"github.com/akarpov/planboard/internal/domain"
)

type iterationDelivery struct {
	iteration domain.Iteration
	units     float64
	issues    int
}

// velocityFor builds a member's velocity record from their closed issues.
// Only issues resolvable to a dated iteration count; in points mode an
// issue without a positive story-point value is skipped entirely.
func velocityFor(member domain.TeamMember, snap Snapshot, absences []domain.Absence, pol domain.PolicyConfig) domain.VelocityRecord {
	unit := pol.Unit()
	rec := domain.VelocityRecord{Username: member.Username, Unit: unit, Quality: domain.QualityInsufficient}

	byIter := map[string]*iterationDelivery{}
	for _, is := range snap.Issues {
		if !is.Closed() || is.Assignee != member.Username {
			continue
		}
		it, ok := iterationForIssue(snap, is)
		if !ok || it.StartDay.IsZero() || it.DueDay.IsZero() {
			continue
		}
		units := 1.0
		if pol.MetricType == domain.MetricPoints {
			sp := is.StoryPoints()
			if sp <= 0 {
				continue
			}
			units = float64(sp)
		}
		key := it.ID
		if key == "" {
			key = it.Name
		}
		d, ok := byIter[key]
		if !ok {
			d = &iterationDelivery{iteration: it}
			byIter[key] = d
		}
		d.units += units
		d.issues++
	}
	if len(byIter) == 0 {
		return rec
	}

	deliveries := make([]iterationDelivery, 0, len(byIter))
	for _, d := range byIter {
		deliveries = append(deliveries, *d)
	}
	// most recent first, then truncate to the lookback window
	sort.Slice(deliveries, func(i, j int) bool {
		return deliveries[i].iteration.DueDay.After(deliveries[j].iteration.DueDay)
	})
	if n := pol.VelocityLookbackIterations; n > 0 && len(deliveries) > n {
		deliveries = deliveries[:n]
	}

	weekly := member.HoursOrDefault(pol.DefaultWeeklyCapacity)
	perDay := weekly / 5.0
	var totalUnits, totalHours float64
	for _, d := range deliveries {
		wd := calendar.WorkingDays(d.iteration.StartDay, d.iteration.DueDay)
		lost := float64(absenceWorkingDaysLost(absences, member.Username, d.iteration.StartDay, d.iteration.DueDay)) * perDay
		avail := float64(wd)*perDay - lost
		if avail < 0 {
			avail = 0
		}
		totalUnits += d.units
		totalHours += avail
	}

	rec.IterationsAnalyzed = len(deliveries)
	rec.TotalUnits = totalUnits
	rec.TotalAvailableHours = totalHours
	if totalUnits > 0 {
		hpu := totalHours / totalUnits
		rec.HoursPerUnit = &hpu
	}
	rec.Quality = velocityQuality(deliveries)
	return rec
}

// velocityQuality grades the evidence behind a record. Excellent needs
// three or more iterations whose delivered units, oldest first, are all
// positive and never decrease.
func velocityQuality(deliveries []iterationDelivery) domain.VelocityQuality {
	switch len(deliveries) {
	case 0:
		return domain.QualityInsufficient
	case 1:
		return domain.QualityLow
	case 2:
		return domain.QualityModerate
	}
	chrono := make([]iterationDelivery, len(deliveries))
	copy(chrono, deliveries)
	sort.Slice(chrono, func(i, j int) bool {
		return chrono[i].iteration.DueDay.Before(chrono[j].iteration.DueDay)
	})
	for i, d := range chrono {
		if d.units <= 0 || (i > 0 && d.units < chrono[i-1].units) {
			return domain.QualityGood
		}
	}
	return domain.QualityExcellent
}

// velocityRecords computes a record for every active roster member.
func velocityRecords(snap Snapshot, absences []domain.Absence, pol domain.PolicyConfig) map[string]domain.VelocityRecord {
	out := map[string]domain.VelocityRecord{}
	for _, m := range activeMembers(snap) {
		out[m.Username] = velocityFor(m, snap, absences, pol)
	}
	return out
}

// effectiveVelocity applies the fallback chain: the member's own rate when
// backed by at least two iterations, else the team average over members
// who clear that bar, else the static policy rate. Static mode skips the
// chain outright.
func effectiveVelocity(records map[string]domain.VelocityRecord, username string, pol domain.PolicyConfig) domain.EffectiveVelocity {
	if pol.VelocityMode == domain.ModeStatic {
		return domain.EffectiveVelocity{HoursPerUnit: pol.StaticHoursPerUnit(), Source: domain.SourceStatic}
	}
	if r, ok := records[username]; ok && r.HoursPerUnit != nil && r.IterationsAnalyzed >= 2 {
		return domain.EffectiveVelocity{HoursPerUnit: *r.HoursPerUnit, Source: domain.SourceMember}
	}
	var sum float64
	n := 0
	for _, r := range records {
		if r.HoursPerUnit != nil && r.IterationsAnalyzed >= 2 {
			sum += *r.HoursPerUnit
			n++
		}
	}
	if n > 0 {
		return domain.EffectiveVelocity{HoursPerUnit: sum / float64(n), Source: domain.SourceTeam}
	}
	return domain.EffectiveVelocity{HoursPerUnit: pol.StaticHoursPerUnit(), Source: domain.SourceStatic}
}

// MemberVelocity returns one member's record plus the rate the planner
// would actually use for them.
func (s *Service) MemberVelocity(ctx context.Context, username string) (domain.VelocityRecord, domain.EffectiveVelocity, error) {
	snap := s.snapshot()
	pol := s.policySnapshot()
	member, err := s.memberByUsername(snap, username)
	if err != nil {
		return domain.VelocityRecord{}, domain.EffectiveVelocity{}, err
	}
	absences, err := s.absences.All(ctx)
	if err != nil {
		return domain.VelocityRecord{}, domain.EffectiveVelocity{}, err
	}
	records := velocityRecords(snap, absences, pol)
	rec, ok := records[member.Username]
	if !ok {
		rec = velocityFor(member, snap, absences, pol)
	}
	return rec, effectiveVelocity(records, member.Username, pol), nil
}

// TeamVelocity returns every active member's record, sorted by username.
func (s *Service) TeamVelocity(ctx context.Context) ([]domain.VelocityRecord, error) {
	snap := s.snapshot()
	pol := s.policySnapshot()
	absences, err := s.absences.All(ctx)
	if err != nil {
		return nil, err
	}
	records := velocityRecords(snap, absences, pol)
	out := make([]domain.VelocityRecord, 0, len(records))
	for _, r := range records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func absenceWorkingDaysLost(absences []domain.Absence, username string, start, end time.Time) int {
	days := 0
	for _, a := range absences {
		if a.Username != username {
			continue
		}
		if s, e, ok := calendar.Overlap(a.StartDay, a.EndDay, start, end); ok {
			days += calendar.WorkingDays(s, e)
		}
	}
	return days
}
