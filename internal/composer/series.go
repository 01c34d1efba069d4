package composer

import (
	"sort"
	"strconv"
	"time"

	"github.com/sabarim/composerdata/internal/window"
)

// backtestCapital is the starting capital every backtest is simulated with;
// it is the baseline backtest returns are computed against.
const backtestCapital = 10000

// SeriesPoint is one dated performance observation for a symphony. The
// live and backtest sides are percentage returns against their respective
// baselines; a side is absent until the provider has produced a value for
// it, and carried forward afterwards.
type SeriesPoint struct {
	Date        string
	Live        float64
	HasLive     bool
	Backtest    float64
	HasBacktest bool
}

// liveSeries is the live portfolio history response: a value series keyed
// by millisecond timestamps, adjusted for deposits and withdrawals.
type liveSeries struct {
	EpochMS               []int64   `json:"epoch_ms"`
	DepositAdjustedSeries []float64 `json:"deposit_adjusted_series"`
}

// backtestRequest is the simulation request body.
type backtestRequest struct {
	Capital         float64 `json:"capital"`
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	Broker          string  `json:"broker"`
	SlippagePercent float64 `json:"slippage_percent"`
	BacktestVersion string  `json:"backtest_version"`
	ApplyRegFee     bool    `json:"apply_reg_fee"`
	ApplyTafFee     bool    `json:"apply_taf_fee"`
}

// backtestResult carries the simulated capital series per symphony, keyed
// by days since the Unix epoch.
type backtestResult struct {
	DVMCapital map[string]map[string]float64 `json:"dvm_capital"`
}

// mergeSeries converts both sides to percentage returns, restricts them to
// the window, and joins them on date. Dates where only one side reports
// carry the other side's last known value forward.
func mergeSeries(live *liveSeries, backtest *backtestResult, symphonyID string, win window.Window) []SeriesPoint {
	startStr := win.Start.Format(window.DateFormat)
	endStr := win.End.Format(window.DateFormat)

	livePct := liveReturns(live, startStr)
	backtestPct := backtestReturns(backtest, symphonyID)

	dateSet := make(map[string]struct{}, len(livePct)+len(backtestPct))
	for d := range livePct {
		dateSet[d] = struct{}{}
	}
	for d := range backtestPct {
		dateSet[d] = struct{}{}
	}
	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	var points []SeriesPoint
	var lastLive, lastBacktest float64
	var haveLive, haveBacktest bool
	for _, d := range dates {
		if d < startStr || d > endStr {
			continue
		}
		if v, ok := livePct[d]; ok {
			lastLive, haveLive = v, true
		}
		if v, ok := backtestPct[d]; ok {
			lastBacktest, haveBacktest = v, true
		}
		points = append(points, SeriesPoint{
			Date:        d,
			Live:        lastLive,
			HasLive:     haveLive,
			Backtest:    lastBacktest,
			HasBacktest: haveBacktest,
		})
	}
	return points
}

// liveReturns converts the live value series to percentage returns against
// the first in-window value.
func liveReturns(live *liveSeries, startStr string) map[string]float64 {
	if live == nil {
		return nil
	}

	n := len(live.EpochMS)
	if len(live.DepositAdjustedSeries) < n {
		n = len(live.DepositAdjustedSeries)
	}

	type livePoint struct {
		ms    int64
		value float64
	}
	points := make([]livePoint, 0, n)
	for i := 0; i < n; i++ {
		points = append(points, livePoint{ms: live.EpochMS[i], value: live.DepositAdjustedSeries[i]})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].ms < points[j].ms })

	out := make(map[string]float64)
	var baseline float64
	baselineSet := false
	for _, p := range points {
		date := time.UnixMilli(p.ms).UTC().Format(window.DateFormat)
		if date < startStr {
			continue
		}
		if !baselineSet {
			baseline = p.value
			baselineSet = true
		}
		if baseline > 0 {
			out[date] = p.value/baseline - 1
		}
	}
	return out
}

// backtestReturns converts the simulated capital series to percentage
// returns against the starting capital. The series is usually keyed by the
// symphony id; older responses key it differently, in which case the first
// non-benchmark series is taken.
func backtestReturns(backtest *backtestResult, symphonyID string) map[string]float64 {
	if backtest == nil {
		return nil
	}

	series, ok := backtest.DVMCapital[symphonyID]
	if !ok {
		for key, s := range backtest.DVMCapital {
			if key != "SPY" {
				series = s
				break
			}
		}
	}
	if series == nil {
		return nil
	}

	epoch := time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
	out := make(map[string]float64, len(series))
	for dayKey, value := range series {
		day, err := strconv.Atoi(dayKey)
		if err != nil {
			continue
		}
		date := epoch.AddDate(0, 0, day).Format(window.DateFormat)
		out[date] = value/backtestCapital - 1
	}
	return out
}
