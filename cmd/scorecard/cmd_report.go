package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/scorecard-api/internal/analytics"
	"github.com/noah-isme/scorecard-api/internal/dto"
	"github.com/noah-isme/scorecard-api/internal/models"
	"github.com/noah-isme/scorecard-api/pkg/export"
)

type reportFlags struct {
	results     string
	roster      string
	maxScore    float64
	subjectMax  float64
	zeroAbsent  bool
	test        int
	subject     string
	search      string
	metric      string
	csv         bool
	classroomID string
}

func newReportCmd() *cobra.Command {
	flags := &reportFlags{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Compute the performance dashboard for a results export",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd, flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.results, "results", "", "JSON array of raw test-result objects (required)")
	f.StringVar(&flags.roster, "roster", "", "JSON array of {student_id, name} roster entries")
	f.Float64Var(&flags.maxScore, "max-score", 300, "Maximum possible total score")
	f.Float64Var(&flags.subjectMax, "subject-max-score", 100, "Maximum possible score of one subject")
	f.BoolVar(&flags.zeroAbsent, "zero-absent", true, "Treat a subject score of 0 as not attempted")
	f.IntVar(&flags.test, "test", -1, "Test number to select; 0 is Overall, omit for the latest test")
	f.StringVar(&flags.subject, "subject", "", "Subject for the series and subject trend")
	f.StringVar(&flags.search, "search", "", "Filter ranked students by name or id")
	f.StringVar(&flags.metric, "metric", "average", "Ranking metric: average or total")
	f.BoolVar(&flags.csv, "csv", false, "Print the ranking as CSV instead of the JSON dashboard")
	f.StringVar(&flags.classroomID, "classroom-id", "", "Classroom id echoed in the output")

	_ = cmd.MarkFlagRequired("results")
	return cmd
}

func runReport(cmd *cobra.Command, flags *reportFlags) error {
	var records []models.RawRecord
	if err := readJSONFile(flags.results, &records); err != nil {
		return fmt.Errorf("read results: %w", err)
	}
	var roster []models.RosterEntry
	if flags.roster != "" {
		if err := readJSONFile(flags.roster, &roster); err != nil {
			return fmt.Errorf("read roster: %w", err)
		}
	}
	metric, ok := analytics.ParseRankMetric(flags.metric)
	if !ok {
		return fmt.Errorf("unknown metric %q", flags.metric)
	}

	pipeline, err := analytics.NewPipeline(analytics.Options{
		Roster:            roster,
		TreatZeroAsAbsent: flags.zeroAbsent,
		MaxPossibleScore:  flags.maxScore,
		SubjectMaxScore:   flags.subjectMax,
	})
	if err != nil {
		return err
	}

	view := models.PerformanceView{Subject: flags.subject, Search: flags.search, Metric: metric}
	if cmd.Flags().Changed("test") {
		if flags.test < 0 {
			return fmt.Errorf("test must be a non-negative integer, got %d", flags.test)
		}
		view.TestNumber = &flags.test
	}

	report, err := pipeline.Compute(records, view)
	if err != nil {
		return err
	}

	if flags.csv {
		names := make(map[string]string, len(report.Students))
		for _, s := range report.Students {
			names[s.StudentID] = s.DisplayName
		}
		payload, err := export.NewCSVExporter().Render(export.RankingDataset(report.Ranking, names))
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(payload)
		return err
	}

	subject := ""
	if flags.subject != "" {
		subject = analytics.CanonicalSubject(flags.subject)
	}
	return writeJSON(cmd.OutOrStdout(), dto.NewPerformanceDashboard(flags.classroomID, subject, report))
}
