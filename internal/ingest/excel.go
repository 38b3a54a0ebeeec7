package ingest

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/dreamdb/internal/rowkey"
)

// readExcel reads each sheet as a header row plus data rows. The first sheet becomes table;
// later sheets become "<table>-<sheet>".
func readExcel(content []byte, table string) ([]Batch, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var batches []Batch
	for i, sheet := range f.GetSheetList() {
		records, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		if len(records) == 0 {
			continue
		}
		rows, err := recordsToRows(records)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sheet, err)
		}
		name := table
		if i > 0 {
			name = table + "-" + rowkey.SanitizeTable(sheet)
		}
		batches = append(batches, Batch{Table: name, Rows: rows})
	}
	return batches, nil
}
