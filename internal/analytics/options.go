// Package analytics turns raw per-student, per-test score records into the
// derived metrics shown on performance dashboards.
//
// Every function in this package is a pure transform over its inputs: nothing
// is cached, nothing is mutated in place, and nothing performs I/O. Callers
// fetch and join a snapshot first, then recompute from scratch on every view
// change.
package analytics

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/scorecard-api/internal/models"
	appErrors "github.com/noah-isme/scorecard-api/pkg/errors"
)

// Options is the explicit context handed to every pipeline invocation.
type Options struct {
	Roster []models.RosterEntry
	// TreatZeroAsAbsent decides whether a subject score of exactly 0 means
	// "not administered" (true) or "administered, scored zero" (false).
	TreatZeroAsAbsent bool
	// MaxPossibleScore normalises total scores into percentages.
	MaxPossibleScore float64 `validate:"gt=0"`
	// SubjectMaxScore normalises single-subject scores; MaxPossibleScore is used when unset.
	SubjectMaxScore float64 `validate:"omitempty,gt=0"`
}

var validate = validator.New()

// Validate reports configuration errors. These are the only fatal conditions
// in the package.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return appErrors.Extend(appErrors.ErrInvalidConfig, err, fmt.Sprintf("invalid analytics options: %v", err))
	}
	return nil
}

func (o Options) subjectMax() float64 {
	if o.SubjectMaxScore > 0 {
		return o.SubjectMaxScore
	}
	return o.MaxPossibleScore
}

func invalidMaxScore(maxScore float64) error {
	return appErrors.Clone(appErrors.ErrInvalidConfig, fmt.Sprintf("maximum possible score must be positive, got %v", maxScore))
}
