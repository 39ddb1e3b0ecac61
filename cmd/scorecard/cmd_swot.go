package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/scorecard-api/internal/analytics"
	"github.com/noah-isme/scorecard-api/internal/dto"
	"github.com/noah-isme/scorecard-api/internal/models"
)

type swotFlags struct {
	payload string
	deny    []string
}

func newSwotCmd() *cobra.Command {
	flags := &swotFlags{}
	cmd := &cobra.Command{
		Use:   "swot",
		Short: "Categorise a raw SWOT payload into quadrants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSwot(cmd, flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.payload, "payload", "", "JSON object mapping metric codes to subject topic lists (required)")
	f.StringArrayVar(&flags.deny, "deny", nil, "Hide a Category:Title pair (repeatable)")

	_ = cmd.MarkFlagRequired("payload")
	return cmd
}

func runSwot(cmd *cobra.Command, flags *swotFlags) error {
	var payload models.RawSwotPayload
	if err := readJSONFile(flags.payload, &payload); err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	deny, err := analytics.ParseSwotExclusions(flags.deny)
	if err != nil {
		return err
	}

	report := analytics.Categorize(payload)
	if len(report.UnknownCodes) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped unknown metric codes: %v\n", report.UnknownCodes)
	}
	return writeJSON(cmd.OutOrStdout(), dto.SwotView{
		Subjects:     report.View(deny),
		UnknownCodes: report.UnknownCodes,
	})
}
