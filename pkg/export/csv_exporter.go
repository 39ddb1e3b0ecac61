package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/noah-isme/scorecard-api/internal/models"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		record := make([]string, len(data.Headers))
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// RankingDataset lays out a ranking as one row per student. Students without
// data follow the ranked rows with an empty rank and score.
func RankingDataset(r models.Ranking, names map[string]string) Dataset {
	ds := Dataset{Headers: []string{"rank", "student_id", "student_name", string(r.Metric)}}
	for _, e := range r.Entries {
		ds.Rows = append(ds.Rows, map[string]string{
			"rank":           strconv.Itoa(e.Rank),
			"student_id":     e.StudentID,
			"student_name":   e.DisplayName,
			string(r.Metric): strconv.FormatFloat(e.Score, 'f', 2, 64),
		})
	}
	for _, id := range r.Unranked {
		ds.Rows = append(ds.Rows, map[string]string{
			"student_id":   id,
			"student_name": names[id],
		})
	}
	return ds
}
