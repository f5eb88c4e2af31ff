// Package sequence tracks the highest issued job number per department
// and year. Job numbers look like NY25202: department prefix, two-digit
// year, then the running sequence.
package sequence

import (
	"context"
	"fmt"

	"github.com/quotedeck/backend/internal/domain/shared"
)

// JumpWarningThreshold is the gap above the recorded sequence beyond
// which an update succeeds but is flagged for review. Large jumps
// usually mean a typo in the quote number rather than genuine volume.
const JumpWarningThreshold = 100

// JobSequence is the highest recorded sequence for one department/year.
type JobSequence struct {
	Department   string
	Year         int
	LastSequence int
}

// Advance moves the sequence forward to next. A value below the
// recorded sequence is rejected without mutation. A jump of more than
// JumpWarningThreshold succeeds and reports a warning.
func (s *JobSequence) Advance(next int) (warning bool, err error) {
	if next < s.LastSequence {
		return false, shared.NewDomainError("SEQUENCE_REGRESSION",
			fmt.Sprintf("sequence %d is below the recorded %d for %s/%d",
				next, s.LastSequence, s.Department, s.Year))
	}
	warning = next > s.LastSequence+JumpWarningThreshold
	s.LastSequence = next
	return warning, nil
}

// FormatJobNumber renders the canonical job number for a sequence.
func FormatJobNumber(department string, year, seq int) string {
	return fmt.Sprintf("%s%02d%d", department, year%100, seq)
}

// Repository persists job sequences, unique per department/year.
type Repository interface {
	Find(ctx context.Context, department string, year int) (*JobSequence, error)
	Save(ctx context.Context, seq *JobSequence) error
}
