package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// isSpreadsheet reports whether an upload needs the rows pre-transform.
func isSpreadsheet(mimeType, fileName string) bool {
	mt := strings.ToLower(mimeType)
	if strings.Contains(mt, "spreadsheet") || strings.Contains(mt, "ms-excel") || strings.Contains(mt, "csv") {
		return true
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm", ".xls", ".csv":
		return true
	}
	return false
}

// sheetRows converts spreadsheet bytes into row objects keyed by the
// header row. Corrupt input is fatal to the ingestion call; there is no
// meaningful fallback for a workbook that cannot be opened.
func sheetRows(data []byte, mimeType, fileName string) ([]map[string]string, error) {
	if strings.Contains(strings.ToLower(mimeType), "csv") ||
		strings.EqualFold(filepath.Ext(fileName), ".csv") {
		return csvRows(data)
	}
	return workbookRows(data)
}

func workbookRows(data []byte) ([]map[string]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rowObjects(rows)
}

func csvRows(data []byte) ([]map[string]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1 // ragged exports are common
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rowObjects(rows)
}

// rowObjects maps each data row onto the header row. Blank header cells
// are skipped; rows with no values at all are dropped.
func rowObjects(rows [][]string) ([]map[string]string, error) {
	if len(rows) == 0 {
		return nil, errors.New("sheet is empty")
	}
	header := rows[0]
	out := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		obj := make(map[string]string)
		for i, name := range header {
			name = strings.TrimSpace(name)
			if name == "" || i >= len(row) {
				continue
			}
			if cell := strings.TrimSpace(row[i]); cell != "" {
				obj[name] = cell
			}
		}
		if len(obj) > 0 {
			out = append(out, obj)
		}
	}
	return out, nil
}
