package analytics

import (
	"fmt"
	"sort"

	"github.com/noah-isme/scorecard-api/internal/models"
)

type statsAccumulator struct {
	sum   float64
	max   float64
	min   float64
	count int
}

func (a *statsAccumulator) add(v float64) {
	if a.count == 0 || v > a.max {
		a.max = v
	}
	if a.count == 0 || v < a.min {
		a.min = v
	}
	a.sum += v
	a.count++
}

func (a *statsAccumulator) stats() models.SubjectStats {
	if a.count == 0 {
		return models.SubjectStats{}
	}
	return models.SubjectStats{
		Average: a.sum / float64(a.count),
		Max:     a.max,
		Min:     a.min,
		Count:   a.count,
	}
}

func sortedTestKeys(byTest map[int][]models.TestResult) []int {
	keys := make([]int, 0, len(byTest))
	for k := range byTest {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// SubjectSeries returns one subject's per-test statistics, ascending by test
// number. Only records that contain the subject contribute, and tests where
// no record contains it are omitted.
func SubjectSeries(byTest map[int][]models.TestResult, subject string) []models.TestSubjectStats {
	series := make([]models.TestSubjectStats, 0, len(byTest))
	for _, testNumber := range sortedTestKeys(byTest) {
		var acc statsAccumulator
		for _, result := range byTest[testNumber] {
			if score, ok := result.Score(subject); ok {
				acc.add(score)
			}
		}
		if acc.count == 0 {
			continue
		}
		series = append(series, models.TestSubjectStats{TestNumber: testNumber, SubjectStats: acc.stats()})
	}
	return series
}

// PeriodAggregates summarises every test: per-subject stats, total-score
// stats and the number of distinct students who sat it.
func PeriodAggregates(byTest map[int][]models.TestResult) []models.TestPeriodAggregate {
	periods := make([]models.TestPeriodAggregate, 0, len(byTest))
	for _, testNumber := range sortedTestKeys(byTest) {
		subjects := make(map[string]*statsAccumulator)
		var total statsAccumulator
		students := make(map[string]struct{})
		for _, result := range byTest[testNumber] {
			students[result.StudentID] = struct{}{}
			total.add(result.TotalScore)
			for subject, score := range result.SubjectScores {
				acc, ok := subjects[subject]
				if !ok {
					acc = &statsAccumulator{}
					subjects[subject] = acc
				}
				acc.add(score)
			}
		}
		period := models.TestPeriodAggregate{
			TestNumber: testNumber,
			Subjects:   make(map[string]models.SubjectStats, len(subjects)),
			Total:      total.stats(),
			Students:   len(students),
		}
		for subject, acc := range subjects {
			period.Subjects[subject] = acc.stats()
		}
		periods = append(periods, period)
	}
	return periods
}

// LatestTestNumber returns the highest test number present.
func LatestTestNumber(results []models.TestResult) (int, bool) {
	if len(results) == 0 {
		return 0, false
	}
	latest := results[0].TestNumber
	for _, result := range results[1:] {
		if result.TestNumber > latest {
			latest = result.TestNumber
		}
	}
	return latest, true
}

// LatestResults picks each student's most recent result. When a student has
// several records for that test number the first in input order wins and an
// integrity warning is returned.
func LatestResults(results []models.TestResult) (map[string]models.TestResult, []models.IntegrityWarning) {
	latest := make(map[string]models.TestResult)
	duplicates := make(map[string]int)
	for _, result := range results {
		current, ok := latest[result.StudentID]
		switch {
		case !ok || result.TestNumber > current.TestNumber:
			latest[result.StudentID] = result
			delete(duplicates, result.StudentID)
		case result.TestNumber == current.TestNumber:
			duplicates[result.StudentID]++
		}
	}

	ids := make([]string, 0, len(duplicates))
	for id := range duplicates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	warnings := make([]models.IntegrityWarning, 0, len(ids))
	for _, id := range ids {
		testNumber := latest[id].TestNumber
		warnings = append(warnings, models.IntegrityWarning{
			StudentID:  id,
			TestNumber: testNumber,
			Message:    fmt.Sprintf("%d duplicate record(s) for student %s in test %d; kept the first", duplicates[id], id, testNumber),
		})
	}
	return latest, warnings
}
