// Package sequence issues and records job numbers per department/year.
package sequence

import (
	"context"

	"go.uber.org/zap"

	domain "github.com/quotedeck/backend/internal/domain/sequence"
)

// Service coordinates job sequence reads and updates.
type Service struct {
	repo   domain.Repository
	logger *zap.Logger
}

// NewService creates a new sequence Service
func NewService(repo domain.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

// RecordSequence records an externally issued sequence value. A value
// below the recorded high-water mark is rejected without mutation; a
// jump past the warning threshold succeeds but is flagged.
func (s *Service) RecordSequence(ctx context.Context, department string, year, value int) (warning bool, err error) {
	seq, err := s.repo.Find(ctx, department, year)
	if err != nil {
		return false, err
	}

	warning, err = seq.Advance(value)
	if err != nil {
		return false, err
	}
	if err := s.repo.Save(ctx, seq); err != nil {
		return false, err
	}

	if warning {
		s.logger.Warn("job sequence jumped past threshold",
			zap.String("department", department),
			zap.Int("year", year),
			zap.Int("value", value))
	}
	return warning, nil
}

// NextJobNumber issues the next job number for a department/year and
// records it.
func (s *Service) NextJobNumber(ctx context.Context, department string, year int) (string, error) {
	seq, err := s.repo.Find(ctx, department, year)
	if err != nil {
		return "", err
	}

	next := seq.LastSequence + 1
	if _, err := seq.Advance(next); err != nil {
		return "", err
	}
	if err := s.repo.Save(ctx, seq); err != nil {
		return "", err
	}
	return domain.FormatJobNumber(department, year, next), nil
}
