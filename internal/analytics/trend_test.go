package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scorecard-api/internal/models"
	appErrors "github.com/noah-isme/scorecard-api/pkg/errors"
)

func periodsOf(results ...models.TestResult) []models.TestPeriodAggregate {
	return PeriodAggregates(GroupByTest(results))
}

func TestImprovementRateNeedsTwoPeriods(t *testing.T) {
	delta, err := ImprovementRate(periodsOf(result("a", 1, 200)), "", 300)

	require.NoError(t, err)
	assert.False(t, delta.Available)
	assert.Zero(t, delta.Value)
}

func TestImprovementRateUsesNormalisedScores(t *testing.T) {
	periods := periodsOf(
		result("a", 1, 170), result("b", 1, 190),
		result("a", 2, 225),
	)

	delta, err := ImprovementRate(periods, "", 300)

	require.NoError(t, err)
	assert.True(t, delta.Available)
	assert.InDelta(t, 60, delta.Previous, 1e-9)
	assert.InDelta(t, 75, delta.Current, 1e-9)
	assert.Equal(t, 15, delta.Value)
}

func TestImprovementRateComparesTwoLatestAndSkipsOverall(t *testing.T) {
	periods := periodsOf(
		result("a", 0, 300),
		result("a", 1, 30),
		result("a", 4, 90),
		result("a", 3, 120),
	)

	delta, err := ImprovementRate(periods, "", 300)

	require.NoError(t, err)
	assert.Equal(t, -10, delta.Value)
}

func TestImprovementRateBySubject(t *testing.T) {
	periods := periodsOf(
		scored("a", 1, map[string]float64{SubjectPhysics: 40}),
		scored("a", 2, map[string]float64{SubjectChemistry: 90}),
		scored("a", 3, map[string]float64{SubjectPhysics: 52.4}),
	)

	delta, err := ImprovementRate(periods, SubjectPhysics, 100)

	require.NoError(t, err)
	require.True(t, delta.Available)
	assert.Equal(t, 12, delta.Value)

	missing, err := ImprovementRate(periods, SubjectBiology, 100)
	require.NoError(t, err)
	assert.False(t, missing.Available)
}

func TestImprovementRateRejectsInvalidMaxScore(t *testing.T) {
	for _, maxScore := range []float64{0, -300} {
		_, err := ImprovementRate(periodsOf(result("a", 1, 10), result("a", 2, 20)), "", maxScore)
		require.Error(t, err)
		assert.ErrorIs(t, err, appErrors.ErrInvalidConfig)
	}
}

func TestAttendanceDelta(t *testing.T) {
	same := AttendanceDelta(periodsOf(result("a", 1, 1), result("b", 1, 1), result("a", 2, 1), result("b", 2, 1)))
	assert.True(t, same.Available)
	assert.Equal(t, models.DirectionSame, same.Direction)
	assert.Zero(t, same.Change)

	up := AttendanceDelta(periodsOf(result("a", 1, 1), result("a", 2, 1), result("b", 2, 1), result("c", 2, 1)))
	assert.Equal(t, models.DirectionUp, up.Direction)
	assert.Equal(t, 2, up.Change)
	assert.Equal(t, 3, up.Current)
	assert.Equal(t, 1, up.Previous)

	down := AttendanceDelta(periodsOf(result("a", 1, 1), result("b", 1, 1), result("a", 2, 1), result("a", 0, 1)))
	assert.Equal(t, models.DirectionDown, down.Direction)
	assert.Equal(t, -1, down.Change)

	single := AttendanceDelta(periodsOf(result("a", 1, 1)))
	assert.False(t, single.Available)
}

func TestStudentPeriods(t *testing.T) {
	agg := GroupByStudent([]models.TestResult{result("a", 1, 150), result("a", 2, 210)}, nil)["a"]

	periods := StudentPeriods(agg)
	require.Len(t, periods, 2)

	delta, err := ImprovementRate(periods, "", 300)
	require.NoError(t, err)
	assert.Equal(t, 20, delta.Value)
}
