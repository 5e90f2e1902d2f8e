package absence

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akarpov/planboard/internal/domain"
)

func TestImportCSV(t *testing.T) {
	ctx := context.Background()
	s := newTestStore("alpha")

	text := strings.Join([]string{
		"username,start,end,reason,type,created",
		"ada,2025-03-10,2025-03-12,spring break,vacation,2025-03-01",
		`ben,2025-03-17,2025-03-18,"conf, travel",training`,
		"cara,not-a-date,2025-03-20,sick leave,sick",
		"dan,2025-03-25,2025-03-24,inverted,vacation",
	}, "\n")

	res, err := s.ImportCSV(ctx, text)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 4, res.Errors[0].Row)
	assert.Equal(t, 5, res.Errors[1].Row)
	assert.ErrorIs(t, res.Errors[1], domain.ErrInvalidRange)

	ben, err := s.ForUser(ctx, "ben", nil, nil)
	require.NoError(t, err)
	require.Len(t, ben, 1)
	assert.Equal(t, "conf, travel", ben[0].Reason)
	assert.Equal(t, domain.AbsenceTraining, ben[0].Type)
}

func TestImportCSVWithoutHeader(t *testing.T) {
	s := newTestStore("alpha")
	res, err := s.ImportCSV(context.Background(), "ada,2025-03-10,2025-03-12,holiday,vacation\n")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Empty(t, res.Errors)
}

func TestExportCSVAlwaysEmitsHeader(t *testing.T) {
	s := newTestStore("alpha")
	out, err := s.ExportCSV(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "username,start,end,reason,type,created\n", out)
}

func TestImportExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore("alpha")

	_, err := s.Add(ctx, "ada", day(2025, 3, 10), day(2025, 3, 12), domain.AbsenceVacation, "spring break")
	require.NoError(t, err)
	_, err = s.Add(ctx, "ben", day(2025, 3, 17), day(2025, 3, 18), domain.AbsenceTraining, "conf, travel")
	require.NoError(t, err)

	exported, err := s.ExportCSV(ctx, nil, nil)
	require.NoError(t, err)

	// import into a fresh namespace under a later clock and compare
	other := newTestStore("beta")
	other.now = func() time.Time { return day(2025, 6, 15) }
	res, err := other.ImportCSV(ctx, exported)
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	assert.Equal(t, 2, res.Imported)

	want, err := s.All(ctx)
	require.NoError(t, err)
	got, err := other.All(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Username, got[i].Username)
		assert.True(t, want[i].StartDay.Equal(got[i].StartDay))
		assert.True(t, want[i].EndDay.Equal(got[i].EndDay))
		assert.Equal(t, want[i].Type, got[i].Type)
		assert.Equal(t, want[i].Reason, got[i].Reason)
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt),
			"created stamp must survive the round trip, want %s got %s", want[i].CreatedAt, got[i].CreatedAt)
	}
}

func TestImportCSVRestoresCreatedColumn(t *testing.T) {
	ctx := context.Background()
	s := newTestStore("alpha")
	s.now = func() time.Time { return day(2025, 6, 15) }

	res, err := s.ImportCSV(ctx, "ada,2025-03-10,2025-03-12,spring break,vacation,2025-03-01\n")
	require.NoError(t, err)
	require.Empty(t, res.Errors)

	got, err := s.ForUser(ctx, "ada", nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].CreatedAt.Equal(day(2025, 3, 1)),
		"created column must win over the store clock, got %s", got[0].CreatedAt)
}

func TestImportCSVRejectsBadCreatedDate(t *testing.T) {
	s := newTestStore("alpha")
	res, err := s.ImportCSV(context.Background(), "ada,2025-03-10,2025-03-12,x,vacation,yesterday\n")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Imported)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Row)
}

func TestImportCSVContinuesPastMalformedQuoting(t *testing.T) {
	ctx := context.Background()
	s := newTestStore("alpha")

	text := strings.Join([]string{
		"username,start,end,reason,type,created",
		"ada,2025-03-10,2025-03-12,ok,vacation",
		`ben,2025-03-17,2025-03-18,bro"ken",vacation`,
		"cara,2025-04-01,2025-04-02,fine,sick",
	}, "\n")

	res, err := s.ImportCSV(ctx, text)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 3, res.Errors[0].Row)

	cara, err := s.ForUser(ctx, "cara", nil, nil)
	require.NoError(t, err)
	assert.Len(t, cara, 1)
}

func TestExportCSVWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore("alpha")
	_, err := s.Add(ctx, "ada", day(2025, 3, 3), day(2025, 3, 5), domain.AbsenceVacation, "")
	require.NoError(t, err)
	_, err = s.Add(ctx, "ada", day(2025, 4, 7), day(2025, 4, 9), domain.AbsenceVacation, "")
	require.NoError(t, err)

	from, to := day(2025, 4, 1), day(2025, 4, 30)
	out, err := s.ExportCSV(ctx, &from, &to)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "2025-04-07")
}
