package absence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/akarpov/planboard/internal/calendar"
	"github.com/akarpov/planboard/internal/domain"
	"github.com/akarpov/planboard/internal/repo"
)

const blobKey = "absences"

// Store keeps one project's absences as a single blob. Invariant: per
// username the stored day ranges are pairwise-disjoint; Add evicts whatever
// it overlaps.
type Store struct {
	kv      repo.KV
	project string
	log     zerolog.Logger
	now     func() time.Time
}

func NewStore(kv repo.KV, projectKey string, log zerolog.Logger) *Store {
	return &Store{kv: kv, project: projectKey, log: log, now: time.Now}
}

func (s *Store) ProjectKey() string { return s.project }

func blobKeyFor(project string) string {
	if project == "" {
		return blobKey
	}
	return blobKey + "_" + project
}

// ID derives the canonical absence id. Re-adding the same range for the
// same user is idempotent by construction.
func ID(username string, start, end time.Time) string {
	return fmt.Sprintf("%s_%s_%s", username, start.Format("2006-01-02"), end.Format("2006-01-02"))
}

func (s *Store) load(ctx context.Context) ([]domain.Absence, error) {
	raw, ok, err := s.kv.Get(ctx, blobKeyFor(s.project))
	if err != nil || !ok {
		return nil, err
	}
	var out []domain.Absence
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode absences blob: %w", err)
	}
	return out, nil
}

func (s *Store) save(ctx context.Context, list []domain.Absence) error {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartDay.Equal(list[j].StartDay) {
			return list[i].StartDay.Before(list[j].StartDay)
		}
		return list[i].Username < list[j].Username
	})
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, blobKeyFor(s.project), raw)
}

func (s *Store) guardWrite() error {
	if s.project == domain.CrossProjectKey {
		return fmt.Errorf("%w: %s", domain.ErrReadOnlyNamespace, s.project)
	}
	return nil
}

// Add normalizes the endpoints, evicts every absence of username whose
// range overlaps [start, end], and inserts the new record.
func (s *Store) Add(ctx context.Context, username string, start, end time.Time, typ domain.AbsenceType, reason string) (domain.Absence, error) {
	return s.add(ctx, username, start, end, typ, reason, nil)
}

// add is Add with an optional creation stamp so CSV import can restore a
// previously exported record instead of re-stamping it.
func (s *Store) add(ctx context.Context, username string, start, end time.Time, typ domain.AbsenceType, reason string, createdAt *time.Time) (domain.Absence, error) {
	if err := s.guardWrite(); err != nil {
		return domain.Absence{}, err
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.Absence{}, fmt.Errorf("%w: empty username", domain.ErrUnknownMember)
	}
	start, end = calendar.Day(start), calendar.Day(end)
	if start.After(end) {
		return domain.Absence{}, fmt.Errorf("%w: start %s after end %s",
			domain.ErrInvalidRange, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	if _, ok := domain.ParseAbsenceType(string(typ)); !ok {
		typ = domain.AbsenceOther
	}

	list, err := s.load(ctx)
	if err != nil {
		return domain.Absence{}, err
	}
	kept := list[:0]
	for _, a := range list {
		if a.Username == username {
			if _, _, overlaps := calendar.Overlap(a.StartDay, a.EndDay, start, end); overlaps {
				continue
			}
		}
		kept = append(kept, a)
	}
	rec := domain.Absence{
		ID:        ID(username, start, end),
		Username:  username,
		StartDay:  start,
		EndDay:    end,
		Type:      typ,
		Reason:    reason,
		CreatedAt: s.now(),
	}
	if createdAt != nil {
		rec.CreatedAt = calendar.Day(*createdAt)
	}
	kept = append(kept, rec)
	if err := s.save(ctx, kept); err != nil {
		return domain.Absence{}, err
	}
	return rec, nil
}

// Remove deletes by id. Unknown ids are a no-op.
func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	list, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := list[:0]
	removed := false
	for _, a := range list {
		if a.ID == id {
			removed = true
			continue
		}
		kept = append(kept, a)
	}
	if !removed {
		return nil
	}
	return s.save(ctx, kept)
}

func inWindow(a domain.Absence, from, to *time.Time) bool {
	if from != nil && a.EndDay.Before(calendar.Day(*from)) {
		return false
	}
	if to != nil && a.StartDay.After(calendar.Day(*to)) {
		return false
	}
	return true
}

// ForUser returns username's absences ordered by start ascending, optionally
// clipped by a closed-interval overlap predicate.
func (s *Store) ForUser(ctx context.Context, username string, from, to *time.Time) ([]domain.Absence, error) {
	list, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Absence
	for _, a := range list {
		if a.Username == username && inWindow(a, from, to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDay.Before(out[j].StartDay) })
	return out, nil
}

// InRange returns absences of every member intersecting [from, to].
func (s *Store) InRange(ctx context.Context, from, to time.Time) ([]domain.Absence, error) {
	list, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Absence
	for _, a := range list {
		if inWindow(a, &from, &to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDay.Equal(out[j].StartDay) {
			return out[i].StartDay.Before(out[j].StartDay)
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}

// All returns the namespace's absences without any range predicate.
func (s *Store) All(ctx context.Context) ([]domain.Absence, error) {
	return s.load(ctx)
}

// LoadAllNamespaces unions the absence blobs of every project key and tags
// each record with its origin. Backing store for the cross-project view.
func (s *Store) LoadAllNamespaces(ctx context.Context) ([]domain.Absence, error) {
	keys, err := s.kv.Keys(ctx, blobKey)
	if err != nil {
		return nil, err
	}
	var out []domain.Absence
	for _, k := range keys {
		project := ""
		if k != blobKey {
			if !strings.HasPrefix(k, blobKey+"_") {
				continue
			}
			project = strings.TrimPrefix(k, blobKey+"_")
		}
		if project == domain.CrossProjectKey {
			continue
		}
		raw, ok, err := s.kv.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var list []domain.Absence
		if err := json.Unmarshal(raw, &list); err != nil {
			s.log.Warn().Str("key", k).Err(err).Msg("skipping undecodable absence blob")
			continue
		}
		for i := range list {
			list[i].ProjectKey = project
		}
		out = append(out, list...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDay.Equal(out[j].StartDay) {
			return out[i].StartDay.Before(out[j].StartDay)
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}
