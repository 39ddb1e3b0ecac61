package analytics

import (
	"math"
	"sort"
	"strings"

	"github.com/noah-isme/scorecard-api/internal/models"
)

// TestOrder selects how a list of test numbers is sorted.
type TestOrder int

const (
	// OrderAscending sorts numerically, so Overall (0) comes first naturally.
	OrderAscending TestOrder = iota
	// OrderOverallFirst puts Overall first and then the most recent test.
	OrderOverallFirst
)

// GroupByStudent accumulates results per student in a single pass. Roster
// students without any result are synthesised as empty aggregates with
// HasData=false so "no data yet" is never confused with a low score.
func GroupByStudent(results []models.TestResult, roster []models.RosterEntry) map[string]models.StudentAggregate {
	names := make(map[string]string, len(roster))
	for _, entry := range roster {
		id := strings.TrimSpace(entry.StudentID)
		if id == "" {
			continue
		}
		if _, seen := names[id]; !seen {
			names[id] = strings.TrimSpace(entry.Name)
		}
	}

	out := make(map[string]models.StudentAggregate, len(names))
	for _, result := range results {
		agg, ok := out[result.StudentID]
		if !ok {
			agg = models.StudentAggregate{StudentID: result.StudentID, DisplayName: names[result.StudentID]}
		}
		if agg.DisplayName == "" {
			agg.DisplayName = result.StudentName
		}
		agg.Results = append(agg.Results, result)
		agg.TestsTaken++
		agg.HasData = true
		out[result.StudentID] = agg
	}

	for id, agg := range out {
		agg.TotalScore = sumTotals(agg.Results)
		agg.AverageScore = agg.TotalScore / float64(agg.TestsTaken)
		agg.RoundedAverage = int(math.Round(agg.AverageScore))
		out[id] = agg
	}

	for id, name := range names {
		if _, ok := out[id]; ok {
			continue
		}
		out[id] = models.StudentAggregate{StudentID: id, DisplayName: name, Results: []models.TestResult{}}
	}

	for id, agg := range out {
		if agg.DisplayName == "" {
			agg.DisplayName = id
			out[id] = agg
		}
	}
	return out
}

// sumTotals adds the totals smallest first so the sum, and therefore every
// tie in the ranking, does not depend on the order records arrived in.
func sumTotals(results []models.TestResult) float64 {
	totals := make([]float64, len(results))
	for i, r := range results {
		totals[i] = r.TotalScore
	}
	sort.Float64s(totals)
	var sum float64
	for _, v := range totals {
		sum += v
	}
	return sum
}

// SortedAggregates returns the aggregates ordered by student id.
func SortedAggregates(byStudent map[string]models.StudentAggregate) []models.StudentAggregate {
	out := make([]models.StudentAggregate, 0, len(byStudent))
	for _, agg := range byStudent {
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StudentID < out[j].StudentID
	})
	return out
}

// GroupByTest buckets results by test number, keeping input order inside each bucket.
func GroupByTest(results []models.TestResult) map[int][]models.TestResult {
	out := make(map[int][]models.TestResult)
	for _, result := range results {
		out[result.TestNumber] = append(out[result.TestNumber], result)
	}
	return out
}

// TestNumbers returns the distinct test numbers present in results. Test 0
// (Overall) is a real value and is always retained.
func TestNumbers(results []models.TestResult, order TestOrder) []int {
	numbers := make([]int, 0, len(results))
	for _, result := range results {
		numbers = append(numbers, result.TestNumber)
	}
	return SortTestNumbers(numbers, order)
}

// SortTestNumbers deduplicates and orders an arbitrary list of test numbers
// without modifying the input.
func SortTestNumbers(numbers []int, order TestOrder) []int {
	seen := make(map[int]struct{}, len(numbers))
	out := make([]int, 0, len(numbers))
	for _, n := range numbers {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	switch order {
	case OrderOverallFirst:
		sort.Slice(out, func(i, j int) bool {
			if out[i] == models.OverallTestNumber || out[j] == models.OverallTestNumber {
				return out[i] == models.OverallTestNumber && out[j] != models.OverallTestNumber
			}
			return out[i] > out[j]
		})
	default:
		sort.Ints(out)
	}
	return out
}
