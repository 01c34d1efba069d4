package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sabarim/composerdata/internal/composer"
	"github.com/sabarim/composerdata/internal/config"
	"github.com/sabarim/composerdata/internal/window"
)

func day(value string) time.Time {
	t, err := time.Parse(window.DateFormat, value)
	if err != nil {
		panic(err)
	}
	return t
}

type call struct {
	symphonyID string
	win        window.Window
}

// fakeFetcher replays canned results per symphony id and records call order.
type fakeFetcher struct {
	calls  []call
	points map[string][]composer.SeriesPoint
	errs   map[string]error
}

func (f *fakeFetcher) FetchSymphony(ctx context.Context, ref config.SymphonyRef, win window.Window) ([]composer.SeriesPoint, error) {
	f.calls = append(f.calls, call{symphonyID: ref.ID, win: win})
	if err, ok := f.errs[ref.ID]; ok {
		return nil, err
	}
	return f.points[ref.ID], nil
}

func fixedGroup(name, start string, refs ...config.SymphonyRef) config.Group {
	return config.Group{Name: name, StartDate: start, Symphonies: refs}
}

func TestRunFixedGroup(t *testing.T) {
	fetcher := &fakeFetcher{points: map[string][]composer.SeriesPoint{
		"id1": {
			{Date: "2024-01-02", Live: 0.01, HasLive: true},
			{Date: "2024-01-03", Live: 0.02, HasLive: true},
		},
	}}

	groups := []config.Group{
		fixedGroup("A", "2024-01-01", config.SymphonyRef{Name: "Alpha", ID: "id1"}),
	}
	runner := NewRunner(fetcher, day("2024-03-10"), time.Time{}, zerolog.Nop())

	table, err := runner.Run(context.Background(), groups)
	require.NoError(t, err)

	require.Len(t, fetcher.calls, 1)
	require.Equal(t, day("2024-01-01"), fetcher.calls[0].win.Start)
	require.Equal(t, day("2024-03-10"), fetcher.calls[0].win.End)

	require.Len(t, table.Rows, 2)
	for _, row := range table.Rows {
		require.Equal(t, "A", row.Group)
		require.Equal(t, "Alpha", row.SymphonyName)
		require.Equal(t, "id1", row.SymphonyID)
	}
	require.Equal(t, "2024-01-02", table.Rows[0].Date)
	require.Equal(t, "2024-01-03", table.Rows[1].Date)
}

func TestRunPreservesConfiguredOrder(t *testing.T) {
	fetcher := &fakeFetcher{points: map[string][]composer.SeriesPoint{
		"id1": {{Date: "2024-01-02"}},
		"id2": {{Date: "2024-01-02"}},
		"id3": {{Date: "2024-01-02"}},
	}}

	groups := []config.Group{
		fixedGroup("B", "2024-01-01",
			config.SymphonyRef{Name: "Beta", ID: "id2"},
			config.SymphonyRef{Name: "Alpha", ID: "id1"}),
		fixedGroup("A", "2024-01-01", config.SymphonyRef{Name: "Gamma", ID: "id3"}),
	}
	runner := NewRunner(fetcher, day("2024-03-10"), time.Time{}, zerolog.Nop())

	table, err := runner.Run(context.Background(), groups)
	require.NoError(t, err)

	var order []string
	for _, c := range fetcher.calls {
		order = append(order, c.symphonyID)
	}
	require.Equal(t, []string{"id2", "id1", "id3"}, order)

	require.Equal(t, []string{"B", "B", "A"}, []string{table.Rows[0].Group, table.Rows[1].Group, table.Rows[2].Group})
}

func TestRunMonthlyGroupWindows(t *testing.T) {
	fetcher := &fakeFetcher{points: map[string][]composer.SeriesPoint{}}

	groups := []config.Group{
		{Name: "M", Monthly: true, Symphonies: []config.SymphonyRef{{Name: "Alpha", ID: "id1"}}},
	}
	runner := NewRunner(fetcher, day("2024-03-10"), day("2024-01-15"), zerolog.Nop())

	_, err := runner.Run(context.Background(), groups)
	require.NoError(t, err)

	require.Len(t, fetcher.calls, 2)
	require.Equal(t, day("2024-01-15"), fetcher.calls[0].win.Start)
	require.Equal(t, day("2024-02-14"), fetcher.calls[0].win.End)
	require.Equal(t, day("2024-02-15"), fetcher.calls[1].win.Start)
	require.Equal(t, day("2024-03-10"), fetcher.calls[1].win.End)
}

func TestRunMonthlyWithoutStartDate(t *testing.T) {
	fetcher := &fakeFetcher{}
	groups := []config.Group{
		{Name: "M", Monthly: true, Symphonies: []config.SymphonyRef{{Name: "Alpha", ID: "id1"}}},
	}
	runner := NewRunner(fetcher, day("2024-03-10"), time.Time{}, zerolog.Nop())

	_, err := runner.Run(context.Background(), groups)
	require.Error(t, err)
	require.Empty(t, fetcher.calls)
}

func TestRunSkipsUnavailableUnits(t *testing.T) {
	fetcher := &fakeFetcher{
		points: map[string][]composer.SeriesPoint{
			"id1": {{Date: "2024-01-02"}},
			"id3": {{Date: "2024-01-02"}},
		},
		errs: map[string]error{
			"id2": fmt.Errorf("%w: EZ Win (id2)", composer.ErrUnavailable),
		},
	}

	groups := []config.Group{
		fixedGroup("A", "2024-01-01",
			config.SymphonyRef{Name: "Alpha", ID: "id1"},
			config.SymphonyRef{Name: "EZ Win", ID: "id2"},
			config.SymphonyRef{Name: "Gamma", ID: "id3"}),
	}
	runner := NewRunner(fetcher, day("2024-03-10"), time.Time{}, zerolog.Nop())

	table, err := runner.Run(context.Background(), groups)
	require.NoError(t, err, "an unavailable unit must not fail the run")

	require.Len(t, fetcher.calls, 3, "siblings after the failed unit are still fetched")
	require.Len(t, table.Rows, 2)
	require.Equal(t, "id1", table.Rows[0].SymphonyID)
	require.Equal(t, "id3", table.Rows[1].SymphonyID)
}

func TestRunAbortsOnAuthRevoked(t *testing.T) {
	fetcher := &fakeFetcher{
		points: map[string][]composer.SeriesPoint{
			"id1": {{Date: "2024-01-02"}},
		},
		errs: map[string]error{
			"id2": fmt.Errorf("%w: status 401", composer.ErrAuthRevoked),
		},
	}

	groups := []config.Group{
		fixedGroup("A", "2024-01-01",
			config.SymphonyRef{Name: "Alpha", ID: "id1"},
			config.SymphonyRef{Name: "Beta", ID: "id2"},
			config.SymphonyRef{Name: "Gamma", ID: "id3"}),
	}
	runner := NewRunner(fetcher, day("2024-03-10"), time.Time{}, zerolog.Nop())

	table, err := runner.Run(context.Background(), groups)
	require.ErrorIs(t, err, composer.ErrAuthRevoked)
	require.Empty(t, table.Rows, "partially accumulated rows are discarded")
	require.Len(t, fetcher.calls, 2, "no fetch is attempted after revocation")
}

func TestRunConfigErrorBeforeAnyFetch(t *testing.T) {
	fetcher := &fakeFetcher{}
	groups := []config.Group{
		fixedGroup("A", "2024-01-01", config.SymphonyRef{Name: "Alpha", ID: "id1"}),
		fixedGroup("Future", "2099-01-01", config.SymphonyRef{Name: "Beta", ID: "id2"}),
	}
	runner := NewRunner(fetcher, day("2024-03-10"), time.Time{}, zerolog.Nop())

	_, err := runner.Run(context.Background(), groups)
	require.ErrorIs(t, err, window.ErrStartAfterToday)
	require.Empty(t, fetcher.calls, "window resolution happens before any fetch")
}

func TestRunCancelledContext(t *testing.T) {
	fetcher := &fakeFetcher{points: map[string][]composer.SeriesPoint{}}
	groups := []config.Group{
		fixedGroup("A", "2024-01-01", config.SymphonyRef{Name: "Alpha", ID: "id1"}),
	}
	runner := NewRunner(fetcher, day("2024-03-10"), time.Time{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, groups)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, fetcher.calls)
}
