package report

import (
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/sabarim/composerdata/internal/composer"
	"github.com/sabarim/composerdata/internal/config"
)

// Columns is the fixed output column order.
var Columns = []string{"group", "symphony_name", "symphony_id", "date", "live_pct", "backtest_pct"}

// Row is one emitted performance record. Return values are pre-formatted;
// a blank cell means the side had not produced a value yet.
type Row struct {
	Group        string
	SymphonyName string
	SymphonyID   string
	Date         string
	Live         string
	Backtest     string
}

// Table is the merged output across all groups, in orchestration order.
// Rows are never deduplicated or re-sorted.
type Table struct {
	Rows []Row
}

// NewRow tags a series point with its group and symphony identity.
func NewRow(group string, ref config.SymphonyRef, p composer.SeriesPoint) Row {
	return Row{
		Group:        group,
		SymphonyName: ref.Name,
		SymphonyID:   ref.ID,
		Date:         p.Date,
		Live:         formatReturn(p.Live, p.HasLive),
		Backtest:     formatReturn(p.Backtest, p.HasBacktest),
	}
}

func formatReturn(v float64, present bool) string {
	if !present {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// Render produces the CSV text for a table: one header row followed by one
// line per row, in table order. It is a pure function; identical tables
// render to byte-identical text.
func Render(t Table) string {
	var b strings.Builder
	w := csv.NewWriter(&b)

	w.Write(Columns)
	for _, row := range t.Rows {
		w.Write([]string{row.Group, row.SymphonyName, row.SymphonyID, row.Date, row.Live, row.Backtest})
	}
	w.Flush()

	return b.String()
}
