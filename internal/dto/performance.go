package dto

import (
	"fmt"

	"github.com/noah-isme/scorecard-api/internal/models"
)

// Audience selects which SWOT denylist applies to a view.
type Audience string

const (
	AudienceInstitution Audience = "institution"
	AudienceEducator    Audience = "educator"
	AudienceStudent     Audience = "student"
)

// PerformanceQuery carries the parsed query parameters shared by every
// performance endpoint.
type PerformanceQuery struct {
	ClassroomID  string
	EducatorID   string
	ViewerID     string
	StudentID    string
	TestNumber   *int
	Subject      string
	Search       string
	Metric       models.RankMetric
	ZeroAsAbsent *bool
	Audience     Audience
}

// Filter returns the storage scope of the query.
func (q PerformanceQuery) Filter() models.PerformanceFilter {
	return models.PerformanceFilter{ClassroomID: q.ClassroomID, EducatorID: q.EducatorID, StudentID: q.StudentID}
}

// View returns the pipeline view of the query.
func (q PerformanceQuery) View() models.PerformanceView {
	return models.PerformanceView{TestNumber: q.TestNumber, Subject: q.Subject, Search: q.Search, Metric: q.Metric}
}

// TestOption is one entry of the test selector.
type TestOption struct {
	Number int    `json:"number"`
	Label  string `json:"label"`
}

// DeltaView pairs a trend delta with its display text.
type DeltaView struct {
	models.Delta
	Display string `json:"display"`
}

// AttendanceView pairs the attendance delta with its display text.
type AttendanceView struct {
	models.AttendanceDelta
	Display string `json:"display"`
}

// TrendsView is the trend section of the dashboard.
type TrendsView struct {
	Improvement        DeltaView      `json:"improvement"`
	SubjectImprovement *DeltaView     `json:"subjectImprovement,omitempty"`
	Attendance         AttendanceView `json:"attendance"`
}

// StudentRow is one line of the student table.
type StudentRow struct {
	StudentID      string  `json:"studentId"`
	Name           string  `json:"name"`
	TestsTaken     int     `json:"testsTaken"`
	TotalScore     float64 `json:"totalScore"`
	AverageScore   float64 `json:"averageScore"`
	RoundedAverage int     `json:"roundedAverage"`
	HasData        bool    `json:"hasData"`
}

// PerformanceDashboard is the payload of GET /performance/dashboard.
type PerformanceDashboard struct {
	ClassroomID   string                       `json:"classroomId"`
	SelectedTest  TestOption                   `json:"selectedTest"`
	Tests         []TestOption                 `json:"tests"`
	Subject       string                       `json:"subject,omitempty"`
	Students      []StudentRow                 `json:"students"`
	Periods       []models.TestPeriodAggregate `json:"periods"`
	SubjectSeries []models.TestSubjectStats    `json:"subjectSeries,omitempty"`
	Ranking       models.Ranking               `json:"ranking"`
	Trends        TrendsView                   `json:"trends"`
	Diagnostics   models.Diagnostics           `json:"diagnostics"`
}

// SwotView is the payload of GET /performance/swot.
type SwotView struct {
	ClassroomID  string               `json:"classroomId"`
	StudentID    string               `json:"studentId,omitempty"`
	Audience     Audience             `json:"audience"`
	Subjects     []models.SubjectSwot `json:"subjects"`
	UnknownCodes []string             `json:"unknownCodes,omitempty"`
}

// StudentTrendView is the payload of GET /performance/students/:id/trend.
type StudentTrendView struct {
	StudentID          string     `json:"studentId"`
	Improvement        DeltaView  `json:"improvement"`
	SubjectImprovement *DeltaView `json:"subjectImprovement,omitempty"`
}

// TestLabel names a test number for selectors; 0 is the overall view.
func TestLabel(number int) string {
	if number == models.OverallTestNumber {
		return "Overall"
	}
	return fmt.Sprintf("Test %d", number)
}

// NewDeltaView renders an unavailable delta as "N/A" rather than zero.
func NewDeltaView(d models.Delta) DeltaView {
	if !d.Available {
		return DeltaView{Delta: d, Display: "N/A"}
	}
	return DeltaView{Delta: d, Display: fmt.Sprintf("%+d%%", d.Value)}
}

// NewAttendanceView renders the attendance change with its direction.
func NewAttendanceView(d models.AttendanceDelta) AttendanceView {
	if !d.Available {
		return AttendanceView{AttendanceDelta: d, Display: "N/A"}
	}
	return AttendanceView{AttendanceDelta: d, Display: fmt.Sprintf("%+d", d.Change)}
}

// NewPerformanceDashboard shapes a pipeline report for the API.
func NewPerformanceDashboard(classroomID, subject string, report *models.PerformanceReport) *PerformanceDashboard {
	out := &PerformanceDashboard{
		ClassroomID:   classroomID,
		SelectedTest:  TestOption{Number: report.SelectedTest, Label: TestLabel(report.SelectedTest)},
		Tests:         make([]TestOption, 0, len(report.TestNumbers)),
		Subject:       subject,
		Students:      make([]StudentRow, 0, len(report.Students)),
		Periods:       report.Periods,
		SubjectSeries: report.SubjectSeries,
		Ranking:       report.Ranking,
		Diagnostics:   report.Diagnostics,
	}
	for _, n := range report.TestNumbers {
		out.Tests = append(out.Tests, TestOption{Number: n, Label: TestLabel(n)})
	}
	for _, s := range report.Students {
		out.Students = append(out.Students, StudentRow{
			StudentID:      s.StudentID,
			Name:           s.DisplayName,
			TestsTaken:     s.TestsTaken,
			TotalScore:     s.TotalScore,
			AverageScore:   s.AverageScore,
			RoundedAverage: s.RoundedAverage,
			HasData:        s.HasData,
		})
	}
	out.Trends = TrendsView{
		Improvement: NewDeltaView(report.Trends.Improvement),
		Attendance:  NewAttendanceView(report.Trends.Attendance),
	}
	if subject != "" {
		view := NewDeltaView(report.Trends.SubjectImprovement)
		out.Trends.SubjectImprovement = &view
	}
	return out
}
