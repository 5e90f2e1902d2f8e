package absence

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/akarpov/planboard/internal/domain"
)

const dateLayout = "2006-01-02"

// csvHeader is what ExportCSV always emits; ImportCSV tolerates a missing
// header and a missing created column.
var csvHeader = []string{"username", "start", "end", "reason", "type", "created"}

type ImportResult struct {
	Imported int                `json:"imported"`
	Errors   []*domain.RowError `json:"errors,omitempty"`
}

// ImportCSV ingests newline-delimited absence rows. Best-effort and
// non-transactional: bad rows, malformed quoting included, are collected
// with their 1-based index and the rest are applied through the store's
// eviction semantics, so re-running an import converges.
func (s *Store) ImportCSV(ctx context.Context, text string) (ImportResult, error) {
	if err := s.guardWrite(); err != nil {
		return ImportResult{}, err
	}
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	res := ImportResult{}
	row := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			res.Errors = append(res.Errors, domain.NewRowError(row, err))
			continue
		}
		if row == 1 && isHeaderRow(rec) {
			continue
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) < 5 {
			res.Errors = append(res.Errors, domain.NewRowError(row, fmt.Errorf("expected at least 5 fields, got %d", len(rec))))
			continue
		}
		username := strings.TrimSpace(rec[0])
		start, err := time.ParseInLocation(dateLayout, strings.TrimSpace(rec[1]), time.Local)
		if err != nil {
			res.Errors = append(res.Errors, domain.NewRowError(row, fmt.Errorf("invalid start date %q", rec[1])))
			continue
		}
		end, err := time.ParseInLocation(dateLayout, strings.TrimSpace(rec[2]), time.Local)
		if err != nil {
			res.Errors = append(res.Errors, domain.NewRowError(row, fmt.Errorf("invalid end date %q", rec[2])))
			continue
		}
		reason := rec[3]
		typ, ok := domain.ParseAbsenceType(strings.TrimSpace(rec[4]))
		if !ok {
			typ = domain.AbsenceOther
		}
		var created *time.Time
		if len(rec) >= 6 && strings.TrimSpace(rec[5]) != "" {
			t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(rec[5]), time.Local)
			if err != nil {
				res.Errors = append(res.Errors, domain.NewRowError(row, fmt.Errorf("invalid created date %q", rec[5])))
				continue
			}
			created = &t
		}
		if _, err := s.add(ctx, username, start, end, typ, reason, created); err != nil {
			res.Errors = append(res.Errors, domain.NewRowError(row, err))
			continue
		}
		res.Imported++
	}
	return res, nil
}

// ExportCSV renders the namespace's absences, optionally clipped to
// [from, to]. The header and the created column are always present.
func (s *Store) ExportCSV(ctx context.Context, from, to *time.Time) (string, error) {
	list, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(csvHeader); err != nil {
		return "", err
	}
	for _, a := range list {
		if !inWindow(a, from, to) {
			continue
		}
		rec := []string{
			a.Username,
			a.StartDay.Format(dateLayout),
			a.EndDay.Format(dateLayout),
			a.Reason,
			string(a.Type),
			a.CreatedAt.Format(dateLayout),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	w.Flush()
	return b.String(), w.Error()
}

func isHeaderRow(rec []string) bool {
	for _, f := range rec {
		if strings.EqualFold(strings.TrimSpace(f), "username") {
			return true
		}
	}
	return false
}
