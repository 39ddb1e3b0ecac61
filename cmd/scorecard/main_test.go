package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

const resultsFixture = `[
  {"student_id": 1001, "student_name": "Asha", "test_number": 1, "phy_score": 60, "chem_score": 60, "maths_score": 60},
  {"student_id": 1002, "student_name": "Ravi", "test_number": 1, "phy_score": 50, "chem_score": 70, "maths_score": 60},
  {"student_id": 1001, "student_name": "Asha", "test_number": 2, "phy_score": 80, "chem_score": 70, "maths_score": 75},
  {"student_id": 1002, "student_name": "Ravi", "test_number": "2", "phy_score": 70, "chem_score": 80, "maths_score": 75},
  {"test_number": 2, "phy_score": 10}
]`

func TestReportCommandPrintsDashboard(t *testing.T) {
	results := writeFixture(t, "results.json", resultsFixture)
	roster := writeFixture(t, "roster.json", `[{"student_id": "1003", "name": "Meera"}]`)

	out, _, err := execute(t, "report", "--results", results, "--roster", roster, "--subject", "Maths", "--classroom-id", "c-1")
	require.NoError(t, err)

	var dashboard struct {
		ClassroomID  string `json:"classroomId"`
		SelectedTest struct {
			Label string `json:"label"`
		} `json:"selectedTest"`
		Students []struct {
			StudentID string `json:"studentId"`
			HasData   bool   `json:"hasData"`
		} `json:"students"`
		Trends struct {
			Improvement        struct{ Display string } `json:"improvement"`
			SubjectImprovement struct{ Display string } `json:"subjectImprovement"`
		} `json:"trends"`
		Diagnostics struct {
			MissingStudentID int `json:"missing_student_id"`
		} `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &dashboard))

	assert.Equal(t, "c-1", dashboard.ClassroomID)
	assert.Equal(t, "Test 2", dashboard.SelectedTest.Label)
	ids := make([]string, 0, len(dashboard.Students))
	for _, s := range dashboard.Students {
		ids = append(ids, s.StudentID)
	}
	if diff := cmp.Diff([]string{"1001", "1002", "1003"}, ids); diff != "" {
		t.Fatalf("students mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, dashboard.Students[2].HasData)
	assert.Equal(t, "+15%", dashboard.Trends.Improvement.Display)
	assert.Equal(t, "+15%", dashboard.Trends.SubjectImprovement.Display)
	assert.Equal(t, 1, dashboard.Diagnostics.MissingStudentID)
}

func TestReportCommandCSV(t *testing.T) {
	results := writeFixture(t, "results.json", resultsFixture)

	out, _, err := execute(t, "report", "--results", results, "--test", "1", "--metric", "total", "--csv")
	require.NoError(t, err)

	assert.Equal(t, "rank,student_id,student_name,total\n1,1001,Asha,180.00\n1,1002,Ravi,180.00\n", out)
}

func TestReportCommandErrors(t *testing.T) {
	results := writeFixture(t, "results.json", resultsFixture)

	_, _, err := execute(t, "report")
	assert.Error(t, err)

	_, _, err = execute(t, "report", "--results", results, "--max-score", "0")
	assert.Error(t, err)

	_, _, err = execute(t, "report", "--results", results, "--metric", "median")
	assert.Error(t, err)

	_, _, err = execute(t, "report", "--results", results, "--test", "-2")
	assert.Error(t, err)

	_, _, err = execute(t, "report", "--results", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSwotCommand(t *testing.T) {
	payload := writeFixture(t, "swot.json", `{
  "improvement-over-time": {"Physics": ["Optics"]},
  "weakness-on-high-impact-topics": {"Physics": ["Electrostatics"]},
  "brand-new-metric": {"Physics": ["x"]}
}`)

	out, errOut, err := execute(t, "swot", "--payload", payload, "--deny", "Threats:weakness on high-impact topics")
	require.NoError(t, err)
	assert.Contains(t, errOut, "brand-new-metric")

	var view struct {
		Subjects []struct {
			Subject   string            `json:"subject"`
			Strengths []json.RawMessage `json:"strengths"`
			Threats   []json.RawMessage `json:"threats"`
		} `json:"subjects"`
		UnknownCodes []string `json:"unknownCodes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Len(t, view.Subjects, 1)
	assert.Equal(t, "physics", view.Subjects[0].Subject)
	assert.Len(t, view.Subjects[0].Strengths, 1)
	assert.Empty(t, view.Subjects[0].Threats)
	assert.Equal(t, []string{"brand-new-metric"}, view.UnknownCodes)

	_, _, err = execute(t, "swot", "--payload", payload, "--deny", "Risks:Anything")
	assert.Error(t, err)
}
