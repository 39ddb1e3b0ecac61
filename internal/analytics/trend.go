package analytics

import (
	"math"
	"sort"

	"github.com/noah-isme/scorecard-api/internal/models"
)

// trendPoints keeps the periods that can take part in a trend: Overall (0) is
// an aggregate view rather than a period, and periods without a score for the
// requested subject are skipped. The result is ascending by test number.
func trendPoints(periods []models.TestPeriodAggregate, subject string) []models.TestPeriodAggregate {
	points := make([]models.TestPeriodAggregate, 0, len(periods))
	for _, period := range periods {
		if period.TestNumber == models.OverallTestNumber {
			continue
		}
		if _, ok := periodScore(period, subject); !ok {
			continue
		}
		points = append(points, period)
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].TestNumber < points[j].TestNumber
	})
	return points
}

func periodScore(period models.TestPeriodAggregate, subject string) (float64, bool) {
	if subject == "" {
		return period.Total.Average, period.Total.Count > 0
	}
	stats, ok := period.Subjects[subject]
	if !ok || stats.Count == 0 {
		return 0, false
	}
	return stats.Average, true
}

// ImprovementRate compares the latest and second-latest period's normalised
// score (average ÷ maxScore × 100) and returns the signed percentage-point
// change. An empty subject uses the total score. With fewer than two periods
// the delta is unavailable rather than zero.
func ImprovementRate(periods []models.TestPeriodAggregate, subject string, maxScore float64) (models.Delta, error) {
	if maxScore <= 0 || math.IsNaN(maxScore) || math.IsInf(maxScore, 0) {
		return models.Delta{}, invalidMaxScore(maxScore)
	}
	points := trendPoints(periods, subject)
	if len(points) < 2 {
		return models.Delta{}, nil
	}
	previousScore, _ := periodScore(points[len(points)-2], subject)
	latestScore, _ := periodScore(points[len(points)-1], subject)
	previous := previousScore / maxScore * 100
	current := latestScore / maxScore * 100
	return models.Delta{
		Current:   current,
		Previous:  previous,
		Value:     int(math.Round(current - previous)),
		Available: true,
	}, nil
}

// AttendanceDelta compares how many distinct students sat the latest and the
// second-latest test.
func AttendanceDelta(periods []models.TestPeriodAggregate) models.AttendanceDelta {
	points := trendPoints(periods, "")
	if len(points) < 2 {
		return models.AttendanceDelta{}
	}
	previous := points[len(points)-2].Students
	current := points[len(points)-1].Students
	delta := models.AttendanceDelta{
		Current:   current,
		Previous:  previous,
		Change:    current - previous,
		Available: true,
	}
	switch {
	case delta.Change > 0:
		delta.Direction = models.DirectionUp
	case delta.Change < 0:
		delta.Direction = models.DirectionDown
	default:
		delta.Direction = models.DirectionSame
	}
	return delta
}

// StudentPeriods turns one student's results into a period series so the
// cohort trend functions apply to a single student too.
func StudentPeriods(agg models.StudentAggregate) []models.TestPeriodAggregate {
	return PeriodAggregates(GroupByTest(agg.Results))
}
