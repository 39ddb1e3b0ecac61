package analytics

import (
	"github.com/noah-isme/scorecard-api/internal/models"
)

// Pipeline runs the full aggregation over one snapshot with a fixed set of options.
type Pipeline struct {
	opts Options
}

// NewPipeline validates the options. An invalid configuration is the only
// error the pipeline can fail with.
func NewPipeline(opts Options) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{opts: opts}, nil
}

// Options returns the pipeline configuration.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Compute normalises the raw records and derives every dashboard metric for
// the requested view. The selected test defaults to the latest one; test 0
// selects the overall view, which uses the data source's own Overall rows
// when present and every record otherwise.
func (p *Pipeline) Compute(records []models.RawRecord, view models.PerformanceView) (*models.PerformanceReport, error) {
	norm := Normalize(records, p.opts.TreatZeroAsAbsent)
	diagnostics := norm.Diagnostics
	byTest := GroupByTest(norm.Results)

	selected := models.OverallTestNumber
	if view.TestNumber != nil {
		selected = *view.TestNumber
	} else if latest, ok := LatestTestNumber(norm.Results); ok {
		selected = latest
	}

	students := SortedAggregates(GroupByStudent(selectView(norm.Results, byTest, selected), p.opts.Roster))
	for _, s := range students {
		if !s.HasData {
			diagnostics.RosterStudentsBackfill++
		}
	}

	periods := PeriodAggregates(byTest)
	report := &models.PerformanceReport{
		SelectedTest: selected,
		TestNumbers:  TestNumbers(norm.Results, OrderOverallFirst),
		Students:     students,
		Periods:      periods,
		Ranking:      Rank(FilterAggregates(students, view.Search), view.Metric),
	}

	improvement, err := ImprovementRate(periods, "", p.opts.MaxPossibleScore)
	if err != nil {
		return nil, err
	}
	report.Trends.Improvement = improvement
	report.Trends.Attendance = AttendanceDelta(periods)

	if view.Subject != "" {
		subject := CanonicalSubject(view.Subject)
		report.SubjectSeries = SubjectSeries(byTest, subject)
		subjectImprovement, err := ImprovementRate(periods, subject, p.opts.subjectMax())
		if err != nil {
			return nil, err
		}
		report.Trends.SubjectImprovement = subjectImprovement
	}

	_, diagnostics.IntegrityWarnings = LatestResults(norm.Results)
	report.Diagnostics = diagnostics
	return report, nil
}

// StudentTrend computes one student's improvement across every test they
// sat. found is false when the student has no valid record.
func (p *Pipeline) StudentTrend(records []models.RawRecord, studentID, subject string) (trend models.TrendSummary, found bool, err error) {
	norm := Normalize(records, p.opts.TreatZeroAsAbsent)
	own := make([]models.TestResult, 0)
	for _, result := range norm.Results {
		if result.StudentID == studentID {
			own = append(own, result)
		}
	}
	if len(own) == 0 {
		return trend, false, nil
	}
	agg := GroupByStudent(own, nil)[studentID]
	periods := StudentPeriods(agg)
	if trend.Improvement, err = ImprovementRate(periods, "", p.opts.MaxPossibleScore); err != nil {
		return trend, true, err
	}
	if subject != "" {
		if trend.SubjectImprovement, err = ImprovementRate(periods, CanonicalSubject(subject), p.opts.subjectMax()); err != nil {
			return trend, true, err
		}
	}
	return trend, true, nil
}

// Swot categorises a raw SWOT payload and applies an audience denylist.
func (p *Pipeline) Swot(payload models.RawSwotPayload, deny []models.SwotExclusion) ([]models.SubjectSwot, SwotReport) {
	report := Categorize(payload)
	return report.View(deny), report
}

func selectView(all []models.TestResult, byTest map[int][]models.TestResult, selected int) []models.TestResult {
	if selected != models.OverallTestNumber {
		return byTest[selected]
	}
	if overall := byTest[models.OverallTestNumber]; len(overall) > 0 {
		return overall
	}
	return all
}
