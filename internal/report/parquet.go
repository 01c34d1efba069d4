package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// performanceRecord is the parquet schema for one output row.
type performanceRecord struct {
	Group       string `parquet:"name=group, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Symphony    string `parquet:"name=symphony_name, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	SymphonyID  string `parquet:"name=symphony_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Date        string `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	LivePct     string `parquet:"name=live_pct, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN"`
	BacktestPct string `parquet:"name=backtest_pct, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN"`
}

// WriteParquet writes the table to one parquet file per symphony under dir,
// preserving row order within each file.
func WriteParquet(dir string, t Table, log zerolog.Logger) error {
	if len(t.Rows) == 0 {
		log.Info().Msg("no rows to write to parquet")
		return nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create parquet directory: %w", err)
	}

	// Group rows by symphony id, preserving first-seen order.
	var order []string
	bySymphony := make(map[string][]Row)
	for _, row := range t.Rows {
		if _, seen := bySymphony[row.SymphonyID]; !seen {
			order = append(order, row.SymphonyID)
		}
		bySymphony[row.SymphonyID] = append(bySymphony[row.SymphonyID], row)
	}

	for _, id := range order {
		rows := bySymphony[id]
		filename := filepath.Join(dir, fmt.Sprintf("%s_performance.parquet", id))
		if err := writeRows(filename, rows); err != nil {
			return fmt.Errorf("failed to write parquet file for %s: %w", id, err)
		}
		log.Info().Int("rows", len(rows)).Str("file", filename).Msg("wrote parquet file")
	}

	return nil
}

// writeRows writes one symphony's rows to a parquet file.
func writeRows(filename string, rows []Row) error {
	fw, err := local.NewLocalFileWriter(filename)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(performanceRecord), 4)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	pw.CompressionType = parquet.CompressionCodec_GZIP
	pw.RowGroupSize = 128 * 1024 * 1024 // 128MB row groups
	pw.PageSize = 8 * 1024              // 8KB pages

	for _, row := range rows {
		record := performanceRecord{
			Group:       row.Group,
			Symphony:    row.SymphonyName,
			SymphonyID:  row.SymphonyID,
			Date:        row.Date,
			LivePct:     row.Live,
			BacktestPct: row.Backtest,
		}
		if err := pw.Write(record); err != nil {
			return fmt.Errorf("failed to write parquet data: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}

	return nil
}
