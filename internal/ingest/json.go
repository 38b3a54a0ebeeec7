package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hyperjump/dreamdb/internal/models"
)

// readJSON accepts an array of objects or a single object.
func readJSON(content []byte) ([]models.Row, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return []models.Row{}, nil
	}
	if trimmed[0] == '{' {
		var row models.Row
		if err := json.Unmarshal(trimmed, &row); err != nil {
			return nil, fmt.Errorf("parse json object: %w", err)
		}
		return []models.Row{row}, nil
	}
	var rows []models.Row
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, fmt.Errorf("parse json array: %w", err)
	}
	for i, row := range rows {
		if row == nil {
			return nil, fmt.Errorf("parse json array: element %d is not an object", i)
		}
	}
	return rows, nil
}

// readJSONLines reads one object per line, skipping blank lines.
func readJSONLines(content []byte) ([]models.Row, error) {
	var rows []models.Row
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var row models.Row
		if err := json.Unmarshal(text, &row); err != nil {
			return nil, fmt.Errorf("parse json line %d: %w", line, err)
		}
		if row == nil {
			return nil, fmt.Errorf("parse json line %d: not an object", line)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read json lines: %w", err)
	}
	return rows, nil
}
