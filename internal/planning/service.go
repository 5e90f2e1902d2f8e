/* Copyright (c) 2025 A. Karpov
 * SPDX-License-Identifier: BSD-3-Clause */
package planning

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/akarpov/planboard/internal/absence"
	"github.com/akarpov/planboard/internal/calendar"
	"github.com/akarpov/planboard/internal/config"
	"github.com/akarpov/planboard/internal/domain"
	"github.com/akarpov/planboard/internal/repo"
)

// IssueSource materializes issues, iterations and members. The planning
// core never talks to the network itself; all fetching happens through this
// boundary before a query runs.
type IssueSource interface {
	Issues(ctx context.Context) ([]domain.Issue, error)
	Iterations(ctx context.Context) ([]domain.Iteration, error)
	Members(ctx context.Context) ([]domain.TeamMember, error)
}

type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Snapshot is the immutable input of every query: queries observe the
// snapshot taken at entry, writers replace it wholesale.
type Snapshot struct {
	Members    []domain.TeamMember
	Iterations []domain.Iteration
	Issues     []domain.Issue
	TakenAt    time.Time
}

const (
	teamConfigBlob     = "teamConfig"
	velocityConfigBlob = "velocityConfig"
	projectGroupsBlob  = "projectGroups"
)

type teamConfig struct {
	Members []domain.TeamMember `json:"members"`
}

// ProjectGroup names a composite of project keys whose absences can be
// viewed together.
type ProjectGroup struct {
	Name     string   `json:"name"`
	Projects []string `json:"projects"`
}

type Service struct {
	cfg      config.Config
	log      zerolog.Logger
	kv       repo.KV
	project  string
	absences *absence.Store
	src      IssueSource
	tg       Notifier

	mu     sync.RWMutex
	snap   Snapshot
	policy domain.PolicyConfig

	now func() time.Time
}

func New(cfg config.Config, log zerolog.Logger, kv repo.KV, abs *absence.Store, src IssueSource, tg Notifier) *Service {
	return &Service{
		cfg:      cfg,
		log:      log,
		kv:       kv,
		project:  cfg.ProjectKey,
		absences: abs,
		src:      src,
		tg:       tg,
		policy:   domain.DefaultPolicy(),
		now:      time.Now,
	}
}

func (s *Service) nsKey(base string) string {
	if s.project == "" {
		return base
	}
	return base + "_" + s.project
}

func (s *Service) readOnly() bool { return s.project == domain.CrossProjectKey }

func (s *Service) guardWrite() error {
	if s.readOnly() {
		return fmt.Errorf("%w: %s", domain.ErrReadOnlyNamespace, s.project)
	}
	return nil
}

// Init loads the persisted roster and policy for the namespace. Missing
// blobs fall back to defaults.
func (s *Service) Init(ctx context.Context) error {
	var tc teamConfig
	ok, err := s.getJSON(ctx, s.nsKey(teamConfigBlob), &tc)
	if err != nil {
		return err
	}
	pol := domain.DefaultPolicy()
	if _, err := s.getJSON(ctx, s.nsKey(velocityConfigBlob), &pol); err != nil {
		return err
	}
	if err := validatePolicy(pol); err != nil {
		s.log.Warn().Err(err).Msg("persisted policy invalid, using defaults")
		pol = domain.DefaultPolicy()
	}
	s.mu.Lock()
	if ok {
		s.snap.Members = tc.Members
	}
	s.policy = pol
	s.mu.Unlock()
	return nil
}

func (s *Service) getJSON(ctx context.Context, key string, out any) (bool, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode blob %s: %w", key, err)
	}
	return true, nil
}

func (s *Service) putJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, key, raw)
}

// RefreshSnapshot pulls issues, iterations and members from the issue
// source, folds newly seen assignees into the roster, and swaps the
// snapshot.
func (s *Service) RefreshSnapshot(ctx context.Context) error {
	if s.src == nil {
		return fmt.Errorf("issue source not configured for namespace %q", s.project)
	}
	issues, err := s.src.Issues(ctx)
	if err != nil {
		return fmt.Errorf("fetch issues: %w", err)
	}
	iterations, err := s.src.Iterations(ctx)
	if err != nil {
		return fmt.Errorf("fetch iterations: %w", err)
	}
	members, err := s.src.Members(ctx)
	if err != nil {
		return fmt.Errorf("fetch members: %w", err)
	}

	merged := s.mergeRoster(members, issues)
	if err := s.UpdateSnapshot(merged, iterations, issues); err != nil {
		return err
	}
	if !s.readOnly() {
		if err := s.putJSON(ctx, s.nsKey(teamConfigBlob), teamConfig{Members: merged}); err != nil {
			return err
		}
	}
	s.log.Info().
		Int("members", len(merged)).
		Int("iterations", len(iterations)).
		Int("issues", len(issues)).
		Msg("snapshot refreshed")
	return nil
}

// mergeRoster keeps configured members (with their weekly hours and
// soft-removal flags) and imports any assignee not yet on the roster.
func (s *Service) mergeRoster(fetched []domain.TeamMember, issues []domain.Issue) []domain.TeamMember {
	s.mu.RLock()
	existing := make(map[string]domain.TeamMember, len(s.snap.Members))
	for _, m := range s.snap.Members {
		existing[m.Username] = m
	}
	s.mu.RUnlock()

	now := s.now()
	out := make([]domain.TeamMember, 0, len(existing)+len(fetched))
	seen := map[string]bool{}
	add := func(m domain.TeamMember) {
		if m.Username == "" || seen[m.Username] {
			return
		}
		if prev, ok := existing[m.Username]; ok {
			// configuration wins over fetched profile data
			if prev.WeeklyHours != nil {
				m.WeeklyHours = prev.WeeklyHours
			}
			if prev.Role != "" {
				m.Role = prev.Role
			}
			m.Removed = prev.Removed
			m.AddedAt = prev.AddedAt
		} else if m.AddedAt == nil {
			t := now
			m.AddedAt = &t
		}
		seen[m.Username] = true
		out = append(out, m)
	}
	for _, m := range fetched {
		add(m)
	}
	for _, is := range issues {
		if is.Assignee != "" {
			add(domain.TeamMember{Username: is.Assignee})
		}
	}
	// retain configured members the source no longer reports
	for _, m := range s.snapMembersSorted(existing) {
		add(m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (s *Service) snapMembersSorted(m map[string]domain.TeamMember) []domain.TeamMember {
	out := make([]domain.TeamMember, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// UpdateSnapshot replaces the working snapshot. Iterations sharing a name
// but disagreeing on identity or window are rejected: name is the fallback
// identity when the structured id is missing.
func (s *Service) UpdateSnapshot(members []domain.TeamMember, iterations []domain.Iteration, issues []domain.Issue) error {
	byName := map[string]domain.Iteration{}
	for _, it := range iterations {
		if prev, ok := byName[it.Name]; ok {
			if prev.ID != it.ID || !prev.StartDay.Equal(it.StartDay) || !prev.DueDay.Equal(it.DueDay) {
				return fmt.Errorf("%w: iteration name %q is ambiguous", domain.ErrPolicyViolation, it.Name)
			}
			continue
		}
		byName[it.Name] = it
	}
	s.mu.Lock()
	s.snap = Snapshot{
		Members:    members,
		Iterations: iterations,
		Issues:     issues,
		TakenAt:    s.now(),
	}
	s.mu.Unlock()
	return nil
}

func (s *Service) snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Service) policySnapshot() domain.PolicyConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// Members returns the roster, soft-removed entries included.
func (s *Service) Members() []domain.TeamMember {
	snap := s.snapshot()
	out := make([]domain.TeamMember, len(snap.Members))
	copy(out, snap.Members)
	return out
}

// UpsertMember admits or reconfigures a roster entry and persists the
// roster.
func (s *Service) UpsertMember(ctx context.Context, m domain.TeamMember) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	if m.Username == "" {
		return fmt.Errorf("%w: empty username", domain.ErrUnknownMember)
	}
	if m.WeeklyHours != nil && *m.WeeklyHours < 0 {
		return fmt.Errorf("%w: negative weekly hours", domain.ErrPolicyViolation)
	}
	s.mu.Lock()
	replaced := false
	for i := range s.snap.Members {
		if s.snap.Members[i].Username == m.Username {
			if m.AddedAt == nil {
				m.AddedAt = s.snap.Members[i].AddedAt
			}
			s.snap.Members[i] = m
			replaced = true
			break
		}
	}
	if !replaced {
		if m.AddedAt == nil {
			t := s.now()
			m.AddedAt = &t
		}
		s.snap.Members = append(s.snap.Members, m)
		sort.Slice(s.snap.Members, func(i, j int) bool { return s.snap.Members[i].Username < s.snap.Members[j].Username })
	}
	members := make([]domain.TeamMember, len(s.snap.Members))
	copy(members, s.snap.Members)
	s.mu.Unlock()
	return s.putJSON(ctx, s.nsKey(teamConfigBlob), teamConfig{Members: members})
}

// RemoveMember soft-removes: the member stops contributing capacity but
// keeps historical attribution.
func (s *Service) RemoveMember(ctx context.Context, username string) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	s.mu.Lock()
	found := false
	for i := range s.snap.Members {
		if s.snap.Members[i].Username == username {
			s.snap.Members[i].Removed = true
			found = true
			break
		}
	}
	members := make([]domain.TeamMember, len(s.snap.Members))
	copy(members, s.snap.Members)
	s.mu.Unlock()
	if !found {
		return fmt.Errorf("%w: %s", domain.ErrUnknownMember, username)
	}
	return s.putJSON(ctx, s.nsKey(teamConfigBlob), teamConfig{Members: members})
}

// Policy returns the namespace's planning policy.
func (s *Service) Policy() domain.PolicyConfig { return s.policySnapshot() }

func (s *Service) SetPolicy(ctx context.Context, p domain.PolicyConfig) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	if err := validatePolicy(p); err != nil {
		return err
	}
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
	return s.putJSON(ctx, s.nsKey(velocityConfigBlob), p)
}

func (s *Service) ResetPolicy(ctx context.Context) error {
	return s.SetPolicy(ctx, domain.DefaultPolicy())
}

func validatePolicy(p domain.PolicyConfig) error {
	switch p.VelocityMode {
	case domain.ModeDynamic, domain.ModeStatic:
	default:
		return fmt.Errorf("%w: velocity mode %q", domain.ErrPolicyViolation, p.VelocityMode)
	}
	switch p.MetricType {
	case domain.MetricPoints, domain.MetricIssues:
	default:
		return fmt.Errorf("%w: metric type %q", domain.ErrPolicyViolation, p.MetricType)
	}
	if p.StaticHoursPerStoryPoint < 0 || p.StaticHoursPerIssue < 0 {
		return fmt.Errorf("%w: static hours must be non-negative", domain.ErrPolicyViolation)
	}
	if p.VelocityLookbackIterations < 1 {
		return fmt.Errorf("%w: lookback must be positive", domain.ErrPolicyViolation)
	}
	if p.DefaultWeeklyCapacity < 0 {
		return fmt.Errorf("%w: default weekly capacity must be non-negative", domain.ErrPolicyViolation)
	}
	return nil
}

// ProjectGroups returns the configured composite groupings.
func (s *Service) ProjectGroups(ctx context.Context) ([]ProjectGroup, error) {
	var groups []ProjectGroup
	if _, err := s.getJSON(ctx, projectGroupsBlob, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *Service) SaveProjectGroup(ctx context.Context, g ProjectGroup) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	if g.Name == "" || len(g.Projects) == 0 {
		return fmt.Errorf("%w: project group needs a name and at least one project", domain.ErrPolicyViolation)
	}
	groups, err := s.ProjectGroups(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range groups {
		if groups[i].Name == g.Name {
			groups[i] = g
			replaced = true
			break
		}
	}
	if !replaced {
		groups = append(groups, g)
	}
	return s.putJSON(ctx, projectGroupsBlob, groups)
}

func (s *Service) resolveIteration(snap Snapshot, ref string) (domain.Iteration, error) {
	for _, it := range snap.Iterations {
		if it.ID != "" && it.ID == ref {
			return it, nil
		}
	}
	for _, it := range snap.Iterations {
		if it.Name == ref {
			return it, nil
		}
	}
	return domain.Iteration{}, fmt.Errorf("%w: %q", domain.ErrUnknownIteration, ref)
}

func (s *Service) memberByUsername(snap Snapshot, username string) (domain.TeamMember, error) {
	for _, m := range snap.Members {
		if m.Username == username {
			return m, nil
		}
	}
	return domain.TeamMember{}, fmt.Errorf("%w: %s", domain.ErrUnknownMember, username)
}

func activeMembers(snap Snapshot) []domain.TeamMember {
	out := make([]domain.TeamMember, 0, len(snap.Members))
	for _, m := range snap.Members {
		if !m.Removed {
			out = append(out, m)
		}
	}
	return out
}

// iterationForIssue resolves the issue's iteration against the catalogue:
// structured id first, then the name (structured or label-derived).
func iterationForIssue(snap Snapshot, is domain.Issue) (domain.Iteration, bool) {
	if is.IterationID != "" {
		for _, it := range snap.Iterations {
			if it.ID == is.IterationID {
				return it, true
			}
		}
	}
	if ref := is.IterationRef(); ref != "" {
		for _, it := range snap.Iterations {
			if it.Name == ref {
				return it, true
			}
		}
	}
	return domain.Iteration{}, false
}

type MemberAbsenceStats struct {
	Username    string                     `json:"username"`
	WorkingDays int                        `json:"working_days"`
	ByType      map[domain.AbsenceType]int `json:"by_type"`
}

type AbsenceStats struct {
	From             time.Time            `json:"from"`
	To               time.Time            `json:"to"`
	TotalWorkingDays int                  `json:"total_working_days"`
	Members          []MemberAbsenceStats `json:"members"`
}

// TeamAbsenceStats aggregates working days lost per member in [from, to].
func (s *Service) TeamAbsenceStats(ctx context.Context, from, to time.Time) (AbsenceStats, error) {
	from, to = calendar.Day(from), calendar.Day(to)
	if from.After(to) {
		return AbsenceStats{}, fmt.Errorf("%w: from after to", domain.ErrInvalidRange)
	}
	var (
		list []domain.Absence
		err  error
	)
	if s.readOnly() {
		list, err = s.absences.LoadAllNamespaces(ctx)
	} else {
		list, err = s.absences.InRange(ctx, from, to)
	}
	if err != nil {
		return AbsenceStats{}, err
	}

	byMember := map[string]*MemberAbsenceStats{}
	total := 0
	for _, a := range list {
		start, end, ok := calendar.Overlap(a.StartDay, a.EndDay, from, to)
		if !ok {
			continue
		}
		days := calendar.WorkingDays(start, end)
		st, ok2 := byMember[a.Username]
		if !ok2 {
			st = &MemberAbsenceStats{Username: a.Username, ByType: map[domain.AbsenceType]int{}}
			byMember[a.Username] = st
		}
		st.WorkingDays += days
		st.ByType[a.Type] += days
		total += days
	}
	stats := AbsenceStats{From: from, To: to, TotalWorkingDays: total}
	for _, st := range byMember {
		stats.Members = append(stats.Members, *st)
	}
	sort.Slice(stats.Members, func(i, j int) bool { return stats.Members[i].Username < stats.Members[j].Username })
	return stats, nil
}
