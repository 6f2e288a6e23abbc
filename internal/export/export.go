package export

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mtlprog/finances/internal/portfolio"
)

// Writer writes a rendered report to a destination.
type Writer interface {
	Write(ctx context.Context, r Report) error
}

// PortfolioSource defines the portfolio computation used for reports.
type PortfolioSource interface {
	Overview(ctx context.Context, userID uuid.UUID) (portfolio.Overview, error)
}

// Service builds reports from live portfolio figures and delegates writing to a Writer.
type Service struct {
	portfolio PortfolioSource
	now       func() time.Time
}

// NewService creates a new export Service.
func NewService(portfolio PortfolioSource) *Service {
	if portfolio == nil {
		panic("export.NewService: portfolio must not be nil")
	}
	return &Service{portfolio: portfolio, now: time.Now}
}

// Export renders the user's current portfolio and hands it to w.
func (s *Service) Export(ctx context.Context, userID uuid.UUID, w Writer) error {
	overview, err := s.portfolio.Overview(ctx, userID)
	if err != nil {
		return fmt.Errorf("computing portfolio: %w", err)
	}
	if err := w.Write(ctx, Build(overview, s.now())); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
