package models

import "math"

// OverallTestNumber is the reserved test number for the aggregate view across all periods.
const OverallTestNumber = 0

// RawRecord is one deserialised test-result object as delivered by the data source.
type RawRecord map[string]interface{}

// RawSwotPayload maps a metric code to a per-subject list of topics.
type RawSwotPayload map[string]interface{}

// RosterEntry identifies a known student, used to backfill students without results.
type RosterEntry struct {
	StudentID string `db:"student_id" json:"student_id"`
	Name      string `db:"full_name" json:"name"`
}

// TestResult is one canonical row per student per test.
type TestResult struct {
	StudentID     string             `json:"student_id"`
	StudentName   string             `json:"student_name,omitempty"`
	TestNumber    int                `json:"test_number"`
	SubjectScores map[string]float64 `json:"subject_scores"`
	TotalScore    float64            `json:"total_score"`
}

// Score returns the subject score and whether the subject was administered.
func (r TestResult) Score(subject string) (float64, bool) {
	v, ok := r.SubjectScores[subject]
	return v, ok
}

// StudentAggregate accumulates every result contributed by one student.
type StudentAggregate struct {
	StudentID      string       `json:"student_id"`
	DisplayName    string       `json:"display_name"`
	Results        []TestResult `json:"results"`
	TotalScore     float64      `json:"total_score"`
	TestsTaken     int          `json:"tests_taken"`
	AverageScore   float64      `json:"average_score"`
	RoundedAverage int          `json:"rounded_average"`
	HasData        bool         `json:"has_data"`
}

// SubjectStats holds average/max/min/count for one subject (or the total) in one test.
type SubjectStats struct {
	Average float64 `json:"average"`
	Max     float64 `json:"max"`
	Min     float64 `json:"min"`
	Count   int     `json:"count"`
}

// Rounded returns the average rounded to the nearest integer for display.
func (s SubjectStats) Rounded() int {
	return int(math.Round(s.Average))
}

// TestPeriodAggregate summarises one test across all contributing students.
type TestPeriodAggregate struct {
	TestNumber int                     `json:"test_number"`
	Subjects   map[string]SubjectStats `json:"subjects"`
	Total      SubjectStats            `json:"total"`
	Students   int                     `json:"students"`
}

// TestSubjectStats is one point in a per-subject series.
type TestSubjectStats struct {
	TestNumber int `json:"test_number"`
	SubjectStats
}

// RankMetric selects the aggregate a ranking is ordered by.
type RankMetric string

const (
	RankByAverage RankMetric = "average"
	RankByTotal   RankMetric = "total"
)

// RankedEntry is one student's place within a ranked view.
type RankedEntry struct {
	StudentID   string  `json:"student_id"`
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
	Rank        int     `json:"rank"`
}

// Ranking is the ordered leaderboard for a filtered cohort. Available is false
// when no student in the cohort has data.
type Ranking struct {
	Metric    RankMetric    `json:"metric"`
	Entries   []RankedEntry `json:"entries"`
	Unranked  []string      `json:"unranked,omitempty"`
	Available bool          `json:"available"`
}

// Delta is a signed percentage-point change between the two latest periods.
type Delta struct {
	Current   float64 `json:"current"`
	Previous  float64 `json:"previous"`
	Value     int     `json:"value"`
	Available bool    `json:"available"`
}

// Direction describes how a count moved between periods.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionSame Direction = "same"
)

// AttendanceDelta compares distinct-student counts between the two latest periods.
type AttendanceDelta struct {
	Current   int       `json:"current"`
	Previous  int       `json:"previous"`
	Change    int       `json:"change"`
	Direction Direction `json:"direction,omitempty"`
	Available bool      `json:"available"`
}

// SwotCategory is one of the four SWOT quadrants.
type SwotCategory string

const (
	SwotStrengths     SwotCategory = "Strengths"
	SwotWeaknesses    SwotCategory = "Weaknesses"
	SwotOpportunities SwotCategory = "Opportunities"
	SwotThreats       SwotCategory = "Threats"
)

// SwotCategories lists the quadrants in display order.
var SwotCategories = []SwotCategory{SwotStrengths, SwotWeaknesses, SwotOpportunities, SwotThreats}

// SwotEntry is one categorised metric for one subject.
type SwotEntry struct {
	Category SwotCategory `json:"category"`
	Subject  string       `json:"subject"`
	Title    string       `json:"title"`
	Code     string       `json:"code"`
	Topics   []string     `json:"topics"`
}

// SwotExclusion hides one (category, title) pair from a view.
type SwotExclusion struct {
	Category SwotCategory `json:"category"`
	Title    string       `json:"title"`
}

// SubjectSwot groups a subject's entries by quadrant.
type SubjectSwot struct {
	Subject       string      `json:"subject"`
	Strengths     []SwotEntry `json:"strengths"`
	Weaknesses    []SwotEntry `json:"weaknesses"`
	Opportunities []SwotEntry `json:"opportunities"`
	Threats       []SwotEntry `json:"threats"`
}

// IntegrityWarning reports a data-source inconsistency that was tolerated.
type IntegrityWarning struct {
	StudentID  string `json:"student_id"`
	TestNumber int    `json:"test_number"`
	Message    string `json:"message"`
}

// Diagnostics surfaces everything the pipeline skipped or tolerated.
type Diagnostics struct {
	RecordsReceived        int                `json:"records_received"`
	MissingStudentID       int                `json:"missing_student_id"`
	InvalidTestNumber      int                `json:"invalid_test_number"`
	InvalidScoreValues     int                `json:"invalid_score_values"`
	UnknownMetricCodes     []string           `json:"unknown_metric_codes,omitempty"`
	IntegrityWarnings      []IntegrityWarning `json:"integrity_warnings,omitempty"`
	RosterStudentsBackfill int                `json:"roster_students_backfilled"`
	MalformedRows          int                `json:"malformed_rows"`
}

// Skipped returns the number of records excluded from the result set.
func (d Diagnostics) Skipped() int {
	return d.MissingStudentID + d.InvalidTestNumber + d.MalformedRows
}

// PerformanceView scopes one dashboard computation. TestNumber nil selects the
// latest test; a pointer to 0 selects the overall view.
type PerformanceView struct {
	TestNumber *int
	Subject    string
	Search     string
	Metric     RankMetric
}

// TrendSummary bundles cohort and subject trend deltas.
type TrendSummary struct {
	Improvement        Delta           `json:"improvement"`
	SubjectImprovement Delta           `json:"subject_improvement"`
	Attendance         AttendanceDelta `json:"attendance"`
}

// PerformanceReport is the full derived output of one pipeline run.
type PerformanceReport struct {
	SelectedTest  int                   `json:"selected_test"`
	TestNumbers   []int                 `json:"test_numbers"`
	Students      []StudentAggregate    `json:"students"`
	Periods       []TestPeriodAggregate `json:"periods"`
	SubjectSeries []TestSubjectStats    `json:"subject_series,omitempty"`
	Ranking       Ranking               `json:"ranking"`
	Trends        TrendSummary          `json:"trends"`
	Diagnostics   Diagnostics           `json:"diagnostics"`
}

// PerformanceFilter scopes which raw snapshot is fetched from storage.
// StudentID only narrows the SWOT report; an empty value selects the
// classroom-level report.
type PerformanceFilter struct {
	ClassroomID string
	EducatorID  string
	StudentID   string
}

// Snapshot is a fully joined set of raw inputs fetched for one computation.
type Snapshot struct {
	Results       []RawRecord    `json:"results"`
	Roster        []RosterEntry  `json:"roster"`
	Swot          RawSwotPayload `json:"swot,omitempty"`
	MalformedRows int            `json:"malformed_rows,omitempty"`
}

// ResultRows holds the decodable result payloads of a classroom and the
// number of stored rows that were not a JSON object.
type ResultRows struct {
	Records   []RawRecord
	Malformed int
}
