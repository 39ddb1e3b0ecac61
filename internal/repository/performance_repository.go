package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/scorecard-api/internal/models"
)

// PerformanceRepository reads the raw inputs of the performance dashboard.
// Result rows are stored verbatim as jsonb so upstream field-name drift never
// requires a migration.
type PerformanceRepository struct {
	db *sqlx.DB
}

// NewPerformanceRepository instantiates the repository.
func NewPerformanceRepository(db *sqlx.DB) *PerformanceRepository {
	return &PerformanceRepository{db: db}
}

// ListResults returns every raw test-result payload for the classroom, oldest
// first. Rows that do not hold a JSON object are skipped and counted.
func (r *PerformanceRepository) ListResults(ctx context.Context, filter models.PerformanceFilter) (models.ResultRows, error) {
	var builder strings.Builder
	builder.WriteString("SELECT payload FROM test_results WHERE classroom_id = $1")
	args := []interface{}{filter.ClassroomID}
	if filter.EducatorID != "" {
		args = append(args, filter.EducatorID)
		builder.WriteString(fmt.Sprintf(" AND educator_id = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY recorded_at ASC, id ASC")

	var payloads [][]byte
	if err := r.db.SelectContext(ctx, &payloads, builder.String(), args...); err != nil {
		return models.ResultRows{}, fmt.Errorf("query test results: %w", err)
	}

	rows := models.ResultRows{Records: make([]models.RawRecord, 0, len(payloads))}
	for _, payload := range payloads {
		var record models.RawRecord
		if err := decodePayload(payload, &record); err != nil || record == nil {
			rows.Malformed++
			continue
		}
		rows.Records = append(rows.Records, record)
	}
	return rows, nil
}

// ListRoster returns the enrolled students of the classroom.
func (r *PerformanceRepository) ListRoster(ctx context.Context, filter models.PerformanceFilter) ([]models.RosterEntry, error) {
	const query = "SELECT student_id, full_name FROM students WHERE classroom_id = $1 AND active = TRUE ORDER BY student_id ASC"
	var roster []models.RosterEntry
	if err := r.db.SelectContext(ctx, &roster, query, filter.ClassroomID); err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	return roster, nil
}

// LatestSwot returns the most recent SWOT payload. A missing report yields an
// empty payload.
func (r *PerformanceRepository) LatestSwot(ctx context.Context, filter models.PerformanceFilter) (models.RawSwotPayload, error) {
	var builder strings.Builder
	builder.WriteString("SELECT payload FROM swot_reports WHERE classroom_id = $1")
	args := []interface{}{filter.ClassroomID}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		builder.WriteString(fmt.Sprintf(" AND student_id = $%d", len(args)))
	} else {
		builder.WriteString(" AND student_id IS NULL")
	}
	builder.WriteString(" ORDER BY generated_at DESC LIMIT 1")

	var payload []byte
	if err := r.db.GetContext(ctx, &payload, builder.String(), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RawSwotPayload{}, nil
		}
		return nil, fmt.Errorf("query swot report: %w", err)
	}

	out := models.RawSwotPayload{}
	if err := decodePayload(payload, &out); err != nil {
		return nil, fmt.Errorf("decode swot report: %w", err)
	}
	if out == nil {
		out = models.RawSwotPayload{}
	}
	return out, nil
}

// decodePayload keeps numbers as json.Number so integer ids survive intact.
func decodePayload(raw []byte, dest interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(dest)
}
