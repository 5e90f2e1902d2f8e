package planning

import (
	"context"
	"time"

	"github.com/akarpov/planboard/internal/absence"
	"github.com/akarpov/planboard/internal/domain"
)

// Absence passthroughs so transports talk to one service. The cross-project
// namespace lists the union of every project and rejects writes at the
// store level.

func (s *Service) Absences(ctx context.Context, username string, from, to *time.Time) ([]domain.Absence, error) {
	if s.readOnly() {
		all, err := s.absences.LoadAllNamespaces(ctx)
		if err != nil {
			return nil, err
		}
		if username == "" && from == nil && to == nil {
			return all, nil
		}
		var out []domain.Absence
		for _, a := range all {
			if username != "" && a.Username != username {
				continue
			}
			if from != nil && a.EndDay.Before(*from) {
				continue
			}
			if to != nil && a.StartDay.After(*to) {
				continue
			}
			out = append(out, a)
		}
		return out, nil
	}
	if username != "" {
		return s.absences.ForUser(ctx, username, from, to)
	}
	if from != nil && to != nil {
		return s.absences.InRange(ctx, *from, *to)
	}
	return s.absences.All(ctx)
}

func (s *Service) AddAbsence(ctx context.Context, username string, start, end time.Time, typ domain.AbsenceType, reason string) (domain.Absence, error) {
	return s.absences.Add(ctx, username, start, end, typ, reason)
}

func (s *Service) RemoveAbsence(ctx context.Context, id string) error {
	return s.absences.Remove(ctx, id)
}

func (s *Service) ImportAbsencesCSV(ctx context.Context, text string) (absence.ImportResult, error) {
	return s.absences.ImportCSV(ctx, text)
}

func (s *Service) ExportAbsencesCSV(ctx context.Context, from, to *time.Time) (string, error) {
	return s.absences.ExportCSV(ctx, from, to)
}
