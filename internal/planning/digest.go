package planning

import (
	"context"
	"fmt"
	"strings"

	"github.com/akarpov/planboard/internal/domain"
)

const digestForecastWeeks = 4

// RunWeeklyDigest refreshes the snapshot when a source is wired, then
// pushes a plain-text capacity summary to every configured chat.
func (s *Service) RunWeeklyDigest(ctx context.Context) error {
	if s.tg == nil || len(s.cfg.TelegramChatIDs) == 0 {
		s.log.Info().Msg("digest: no notifier configured, skipping")
		return nil
	}
	if s.src != nil {
		if err := s.RefreshSnapshot(ctx); err != nil {
			s.log.Warn().Err(err).Msg("digest: refresh failed, using last snapshot")
		}
	}
	workload, err := s.WorkloadDistribution(ctx)
	if err != nil {
		return err
	}
	risks, err := s.BurnoutRisks(ctx)
	if err != nil {
		return err
	}
	forecast, err := s.Forecast(ctx, digestForecastWeeks)
	if err != nil {
		return err
	}

	text := renderDigest(s.project, workload, risks, forecast)
	var lastErr error
	for _, chat := range s.cfg.TelegramChatIDs {
		if err := s.tg.SendMessage(ctx, chat, text); err != nil {
			s.log.Error().Int64("chat", chat).Err(err).Msg("digest: send failed")
			lastErr = err
		}
	}
	return lastErr
}

func renderDigest(project string, workload []domain.MemberWorkload, risks []domain.BurnoutRisk, forecast []domain.ForecastWeek) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Capacity digest for %s\n\n", project)

	b.WriteString("Workload:\n")
	if len(workload) == 0 {
		b.WriteString("  no active members\n")
	}
	for _, w := range workload {
		fmt.Fprintf(&b, "  %s: %d open, %.0fh allocated of %.0fh (%d%%, %s)\n",
			w.Username, w.OpenIssues, w.HoursAllocated, w.FinalHours, w.Utilization, w.Status)
	}

	if len(risks) > 0 {
		b.WriteString("\nBurnout signals:\n")
		for _, r := range risks {
			fmt.Fprintf(&b, "  %s: %s (score %d)\n", r.Username, r.Level, r.Score)
		}
	}

	b.WriteString("\nNext weeks:\n")
	for _, w := range forecast {
		fmt.Fprintf(&b, "  %s: %.0fh effective, %.0fh estimated (%d%%, %s)\n",
			w.WeekStart.Format("Jan 02"), w.EffectiveCapacity, w.EstimatedWorkload, w.Utilization, w.Status)
	}
	return b.String()
}
