package planning

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/akarpov/planboard/internal/domain"
)

const scenariosBlob = "scenarios"

// baselineScenario freezes the current roster into the implicit, immutable
// scenario every forecast variant is compared against.
func (s *Service) baselineScenario() domain.Scenario {
	snap := s.snapshot()
	pol := s.policySnapshot()
	sc := domain.Scenario{
		ID:         domain.BaselineScenarioID,
		Name:       "Baseline",
		ProjectKey: s.project,
	}
	for _, m := range activeMembers(snap) {
		sc.Baseline = append(sc.Baseline, domain.BaselineMember{
			Username:    m.Username,
			WeeklyHours: m.HoursOrDefault(pol.DefaultWeeklyCapacity),
		})
	}
	return sc
}

func (s *Service) loadScenarios(ctx context.Context) ([]domain.Scenario, error) {
	var out []domain.Scenario
	if _, err := s.getJSON(ctx, s.nsKey(scenariosBlob), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListScenarios returns the baseline first, then saved scenarios by name.
func (s *Service) ListScenarios(ctx context.Context) ([]domain.Scenario, error) {
	saved, err := s.loadScenarios(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(saved, func(i, j int) bool { return saved[i].Name < saved[j].Name })
	return append([]domain.Scenario{s.baselineScenario()}, saved...), nil
}

func (s *Service) findScenario(ctx context.Context, id string) (domain.Scenario, error) {
	if id == domain.BaselineScenarioID {
		return s.baselineScenario(), nil
	}
	saved, err := s.loadScenarios(ctx)
	if err != nil {
		return domain.Scenario{}, err
	}
	for _, sc := range saved {
		if sc.ID == id {
			return sc, nil
		}
	}
	return domain.Scenario{}, fmt.Errorf("%w: %q", domain.ErrUnknownScenario, id)
}

// SaveScenario validates and upserts a what-if scenario. A scenario with
// no frozen baseline captures the roster as of now; an existing id is
// overwritten.
func (s *Service) SaveScenario(ctx context.Context, sc domain.Scenario) (domain.Scenario, error) {
	if err := s.guardWrite(); err != nil {
		return domain.Scenario{}, err
	}
	if sc.ID == domain.BaselineScenarioID {
		return domain.Scenario{}, fmt.Errorf("%w: the baseline scenario is immutable", domain.ErrPolicyViolation)
	}
	if strings.TrimSpace(sc.Name) == "" {
		return domain.Scenario{}, fmt.Errorf("%w: scenario needs a name", domain.ErrPolicyViolation)
	}
	if err := validateChanges(sc.Changes); err != nil {
		return domain.Scenario{}, err
	}
	if sc.ID == "" {
		sc.ID = slugify(sc.Name)
	}
	if sc.ID == domain.BaselineScenarioID {
		return domain.Scenario{}, fmt.Errorf("%w: scenario id %q is reserved", domain.ErrPolicyViolation, sc.ID)
	}
	if len(sc.Baseline) == 0 {
		sc.Baseline = s.baselineScenario().Baseline
	}
	sc.ProjectKey = s.project
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = s.now()
	}

	saved, err := s.loadScenarios(ctx)
	if err != nil {
		return domain.Scenario{}, err
	}
	replaced := false
	for i := range saved {
		if saved[i].ID == sc.ID {
			sc.CreatedAt = saved[i].CreatedAt
			saved[i] = sc
			replaced = true
			break
		}
	}
	if !replaced {
		saved = append(saved, sc)
	}
	if err := s.putJSON(ctx, s.nsKey(scenariosBlob), saved); err != nil {
		return domain.Scenario{}, err
	}
	return sc, nil
}

// DeleteScenario removes a saved scenario. Unknown ids are a no-op; the
// baseline cannot be deleted.
func (s *Service) DeleteScenario(ctx context.Context, id string) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	if id == domain.BaselineScenarioID {
		return fmt.Errorf("%w: the baseline scenario is immutable", domain.ErrPolicyViolation)
	}
	saved, err := s.loadScenarios(ctx)
	if err != nil {
		return err
	}
	kept := saved[:0]
	removed := false
	for _, sc := range saved {
		if sc.ID == id {
			removed = true
			continue
		}
		kept = append(kept, sc)
	}
	if !removed {
		return nil
	}
	return s.putJSON(ctx, s.nsKey(scenariosBlob), kept)
}

// ScenarioForecast runs the weekly forecast with the scenario's changes
// folded into the roster.
func (s *Service) ScenarioForecast(ctx context.Context, id string, weeks int) ([]domain.ForecastWeek, error) {
	sc, err := s.findScenario(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.forecast(ctx, &sc, weeks)
}

func validateChanges(changes []domain.TeamChange) error {
	for i, ch := range changes {
		if ch.Week < 1 {
			return fmt.Errorf("%w: change %d: week must be 1-based", domain.ErrPolicyViolation, i+1)
		}
		if ch.Username == "" {
			return fmt.Errorf("%w: change %d: username required", domain.ErrPolicyViolation, i+1)
		}
		switch ch.Kind {
		case domain.ChangeHire, domain.ChangeCapacityChange:
			if ch.WeeklyHours < 0 {
				return fmt.Errorf("%w: change %d: weekly hours must be non-negative", domain.ErrPolicyViolation, i+1)
			}
		case domain.ChangeDeparture:
		default:
			return fmt.Errorf("%w: change %d: unknown kind %q", domain.ErrPolicyViolation, i+1, ch.Kind)
		}
		if ch.RampUpWeeks < 0 {
			return fmt.Errorf("%w: change %d: ramp-up weeks must be non-negative", domain.ErrPolicyViolation, i+1)
		}
	}
	return nil
}

// scenarioRosterAt folds every change effective by week into the frozen
// baseline. Hires ramp linearly: factor min(1, (week-startWeek+1)/ramp).
func scenarioRosterAt(sc *domain.Scenario, week int) []rosterEntry {
	type entry struct {
		username    string
		weeklyHours float64
		startWeek   int
		endWeek     int
		rampWeeks   int
	}
	var entries []entry
	idx := map[string]int{}
	for _, b := range sc.Baseline {
		idx[b.Username] = len(entries)
		entries = append(entries, entry{username: b.Username, weeklyHours: b.WeeklyHours})
	}
	for _, ch := range sc.Changes {
		if ch.Week > week {
			continue
		}
		switch ch.Kind {
		case domain.ChangeHire:
			if i, ok := idx[ch.Username]; ok {
				entries[i].weeklyHours = ch.WeeklyHours
				entries[i].startWeek = ch.Week
				entries[i].rampWeeks = ch.RampUpWeeks
				entries[i].endWeek = 0
				continue
			}
			idx[ch.Username] = len(entries)
			entries = append(entries, entry{
				username:    ch.Username,
				weeklyHours: ch.WeeklyHours,
				startWeek:   ch.Week,
				rampWeeks:   ch.RampUpWeeks,
			})
		case domain.ChangeDeparture:
			if i, ok := idx[ch.Username]; ok {
				entries[i].endWeek = ch.Week
			}
		case domain.ChangeCapacityChange:
			if i, ok := idx[ch.Username]; ok {
				entries[i].weeklyHours = ch.WeeklyHours
			}
		}
	}

	out := make([]rosterEntry, 0, len(entries))
	for _, e := range entries {
		if e.endWeek > 0 && week >= e.endWeek {
			continue
		}
		factor := 1.0
		if e.startWeek > 0 && e.rampWeeks > 0 {
			factor = float64(week-e.startWeek+1) / float64(e.rampWeeks)
			if factor > 1 {
				factor = 1
			}
		}
		out = append(out, rosterEntry{username: e.username, weeklyHours: e.weeklyHours, factor: factor})
	}
	return out
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
