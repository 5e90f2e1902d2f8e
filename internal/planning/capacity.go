package planning

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/akarpov/planboard/internal/calendar"
	"github.com/akarpov/planboard/internal/domain"
)

const overridesBlob = "sprintCapacity"

// overrideMap persists manual capacity overrides keyed "iterationID|username".
type overrideMap map[string]float64

func overrideKey(iterationID, username string) string {
	return iterationID + "|" + username
}

// resolveCapacity derives one member's capacity for an iteration.
// Base hours round to the nearest whole hour, absence loss to one decimal,
// and a manual override replaces the auto-adjusted figure outright.
func resolveCapacity(it domain.Iteration, member domain.TeamMember, weeklyHours float64, absences []domain.Absence, override *float64) domain.SprintCapacity {
	wd := calendar.WorkingDays(it.StartDay, it.DueDay)
	base := math.Round(float64(wd) / 5.0 * weeklyHours)
	perDay := weeklyHours / 5.0
	daysLost := absenceWorkingDaysLost(absences, member.Username, it.StartDay, it.DueDay)
	lost := math.Round(float64(daysLost)*perDay*10) / 10
	auto := base - lost
	if auto < 0 {
		auto = 0
	}
	final := auto
	if override != nil {
		final = *override
	}
	return domain.SprintCapacity{
		IterationID:        it.ID,
		IterationName:      it.Name,
		Username:           member.Username,
		WeeklyHours:        weeklyHours,
		WorkingDays:        wd,
		BaseHours:          base,
		WorkingDaysLost:    daysLost,
		AbsenceHoursLost:   lost,
		AutoAdjustedHours:  auto,
		ManualOverrideHours: override,
		FinalHours:         final,
	}
}

func (s *Service) loadOverrides(ctx context.Context) (overrideMap, error) {
	out := overrideMap{}
	if _, err := s.getJSON(ctx, s.nsKey(overridesBlob), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetManualOverride pins a member's final hours for one iteration. A nil
// hours clears the override and auto-adjustment resumes.
func (s *Service) SetManualOverride(ctx context.Context, iterationRef, username string, hours *float64) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	snap := s.snapshot()
	it, err := s.resolveIteration(snap, iterationRef)
	if err != nil {
		return err
	}
	if _, err := s.memberByUsername(snap, username); err != nil {
		return err
	}
	if hours != nil && *hours < 0 {
		return fmt.Errorf("%w: override hours must be non-negative", domain.ErrPolicyViolation)
	}
	overrides, err := s.loadOverrides(ctx)
	if err != nil {
		return err
	}
	key := overrideKey(it.ID, username)
	if hours == nil {
		delete(overrides, key)
	} else {
		overrides[key] = *hours
	}
	return s.putJSON(ctx, s.nsKey(overridesBlob), overrides)
}

// CapacityBreakdown returns the per-member capacity table for an
// iteration, active roster members only, sorted by username.
func (s *Service) CapacityBreakdown(ctx context.Context, iterationRef string) ([]domain.SprintCapacity, error) {
	snap := s.snapshot()
	pol := s.policySnapshot()
	it, err := s.resolveIteration(snap, iterationRef)
	if err != nil {
		return nil, err
	}
	absences, err := s.absences.All(ctx)
	if err != nil {
		return nil, err
	}
	overrides, err := s.loadOverrides(ctx)
	if err != nil {
		return nil, err
	}
	members := activeMembers(snap)
	out := make([]domain.SprintCapacity, 0, len(members))
	for _, m := range members {
		var override *float64
		if v, ok := overrides[overrideKey(it.ID, m.Username)]; ok {
			h := v
			override = &h
		}
		out = append(out, resolveCapacity(it, m, m.HoursOrDefault(pol.DefaultWeeklyCapacity), absences, override))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// MemberCapacity is CapacityBreakdown narrowed to one member.
func (s *Service) MemberCapacity(ctx context.Context, iterationRef, username string) (domain.SprintCapacity, error) {
	snap := s.snapshot()
	if _, err := s.memberByUsername(snap, username); err != nil {
		return domain.SprintCapacity{}, err
	}
	all, err := s.CapacityBreakdown(ctx, iterationRef)
	if err != nil {
		return domain.SprintCapacity{}, err
	}
	for _, c := range all {
		if c.Username == username {
			return c, nil
		}
	}
	return domain.SprintCapacity{}, fmt.Errorf("%w: %s", domain.ErrUnknownMember, username)
}
