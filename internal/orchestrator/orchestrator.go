package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sabarim/composerdata/internal/composer"
	"github.com/sabarim/composerdata/internal/config"
	"github.com/sabarim/composerdata/internal/report"
	"github.com/sabarim/composerdata/internal/window"
)

// Fetcher retrieves the performance series for one symphony over one window.
type Fetcher interface {
	FetchSymphony(ctx context.Context, ref config.SymphonyRef, win window.Window) ([]composer.SeriesPoint, error)
}

// Runner iterates the configured groups in order and assembles the merged
// output table. Fetch order is groups, then symphonies within a group, then
// windows chronologically, so the output ordering is reproducible.
type Runner struct {
	fetcher      Fetcher
	today        time.Time
	monthlyStart time.Time
	log          zerolog.Logger
}

// NewRunner creates a runner. monthlyStart is the operator-supplied start
// date for monthly-mode groups; leave it zero when no group runs monthly.
func NewRunner(fetcher Fetcher, today, monthlyStart time.Time, log zerolog.Logger) *Runner {
	return &Runner{
		fetcher:      fetcher,
		today:        today,
		monthlyStart: monthlyStart,
		log:          log,
	}
}

// Run fetches every configured symphony over its group's windows. A unit
// that stays unavailable after retries is logged and skipped; an
// authentication rejection aborts the run and discards everything fetched
// so far, so no partial table ever reaches the renderer.
func (r *Runner) Run(ctx context.Context, groups []config.Group) (report.Table, error) {
	// Resolve every group's windows up front so configuration errors
	// surface before any fetch is issued.
	plans := make([][]window.Window, len(groups))
	for i, group := range groups {
		windows, err := r.resolveWindows(group)
		if err != nil {
			return report.Table{}, err
		}
		plans[i] = windows
	}

	var table report.Table
	for i, group := range groups {
		r.log.Info().Str("group", group.Name).Int("symphonies", len(group.Symphonies)).Int("windows", len(plans[i])).Msg("processing group")

		for _, ref := range group.Symphonies {
			for _, win := range plans[i] {
				select {
				case <-ctx.Done():
					return report.Table{}, ctx.Err()
				default:
				}

				points, err := r.fetcher.FetchSymphony(ctx, ref, win)
				if err != nil {
					if errors.Is(err, composer.ErrAuthRevoked) {
						return report.Table{}, err
					}
					r.log.Warn().Err(err).
						Str("group", group.Name).
						Str("symphony", ref.Name).
						Str("from", win.Start.Format(window.DateFormat)).
						Str("to", win.End.Format(window.DateFormat)).
						Msg("skipping symphony window")
					continue
				}

				for _, p := range points {
					table.Rows = append(table.Rows, report.NewRow(group.Name, ref, p))
				}
			}
		}
	}

	r.log.Info().Int("rows", len(table.Rows)).Msg("all groups processed")
	return table, nil
}

// resolveWindows computes a group's fetch windows without touching the
// network.
func (r *Runner) resolveWindows(group config.Group) ([]window.Window, error) {
	if group.Monthly {
		if r.monthlyStart.IsZero() {
			return nil, fmt.Errorf("group %q runs in monthly mode but no start date was supplied", group.Name)
		}
		windows, err := window.Monthly(r.monthlyStart, r.today)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", group.Name, err)
		}
		return windows, nil
	}

	start, err := group.Start()
	if err != nil {
		return nil, err
	}
	win, err := window.Fixed(start, r.today)
	if err != nil {
		return nil, fmt.Errorf("group %q: %w", group.Name, err)
	}
	return []window.Window{win}, nil
}
