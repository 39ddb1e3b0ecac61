package analytics

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/noah-isme/scorecard-api/internal/models"
)

// FilterAggregates keeps the aggregates whose display name or id contains the
// search term, compared with Unicode case folding. Ranking must run on the
// filtered cohort so displayed ranks reflect what the viewer sees.
func FilterAggregates(aggs []models.StudentAggregate, search string) []models.StudentAggregate {
	search = strings.TrimSpace(search)
	out := make([]models.StudentAggregate, 0, len(aggs))
	if search == "" {
		return append(out, aggs...)
	}
	fold := cases.Fold()
	needle := fold.String(search)
	for _, agg := range aggs {
		if strings.Contains(fold.String(agg.DisplayName), needle) || strings.Contains(fold.String(agg.StudentID), needle) {
			out = append(out, agg)
		}
	}
	return out
}

// Rank orders students by the metric, descending. Equal values share a rank
// and each rank is 1 + the number of strictly greater values, so scores
// 90, 80, 80, 70 rank 1, 2, 2, 4. Students without data are reported as
// unranked instead of being ranked as zero. Input order never affects ranks.
func Rank(aggs []models.StudentAggregate, metric models.RankMetric) models.Ranking {
	if metric == "" {
		metric = models.RankByAverage
	}
	ranking := models.Ranking{Metric: metric, Entries: []models.RankedEntry{}}
	for _, agg := range aggs {
		if !agg.HasData {
			ranking.Unranked = append(ranking.Unranked, agg.StudentID)
			continue
		}
		ranking.Entries = append(ranking.Entries, models.RankedEntry{
			StudentID:   agg.StudentID,
			DisplayName: agg.DisplayName,
			Score:       metricValue(agg, metric),
		})
	}
	sort.Strings(ranking.Unranked)

	entries := ranking.Entries
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].StudentID < entries[j].StudentID
	})
	for i := range entries {
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
	ranking.Available = len(entries) > 0
	return ranking
}

func metricValue(agg models.StudentAggregate, metric models.RankMetric) float64 {
	if metric == models.RankByTotal {
		return agg.TotalScore
	}
	return agg.AverageScore
}

// ParseRankMetric maps a user supplied metric name onto a known metric.
func ParseRankMetric(raw string) (models.RankMetric, bool) {
	switch models.RankMetric(strings.ToLower(strings.TrimSpace(raw))) {
	case "", models.RankByAverage:
		return models.RankByAverage, true
	case models.RankByTotal:
		return models.RankByTotal, true
	default:
		return "", false
	}
}
