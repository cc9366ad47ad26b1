package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"salesanalysis/backend/internal/actionlist"
	"salesanalysis/backend/internal/dashboard"
	"salesanalysis/backend/internal/domain"
)

// Dashboard summarizes one month of activities against that month's goals.
// A zero year or month selects the current month. Missing goals only leave
// targets at zero; failing to read activities fails the request.
func (s *Service) Dashboard(ctx context.Context, q dashboard.Query) (domain.DashboardSummary, error) {
	if q.Year == 0 || q.Month == 0 {
		now := time.Now().In(s.location)
		q.Year, q.Month = now.Year(), int(now.Month())
	}
	if q.Year < 1 || q.Month < 1 || q.Month > 12 {
		return domain.DashboardSummary{}, ErrInvalidInput
	}
	q.SalesRep = strings.TrimSpace(q.SalesRep)
	switch q.Result {
	case "", dashboard.MetHit, dashboard.MetPartial, dashboard.MetMiss:
	default:
		return domain.DashboardSummary{}, ErrInvalidInput
	}

	var goals domain.Goals
	var activities []domain.Activity
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		goals, err = s.api.Goals(gctx, actionlist.YearMonthLabel(q.Year, q.Month))
		if err != nil {
			s.logger.Warn("goals fetch failed", zap.Int("year", q.Year), zap.Int("month", q.Month), zap.Error(err))
			goals = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		activities, err = s.api.Activities(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.DashboardSummary{}, err
	}

	return dashboard.Summarize(activities, goals, q, s.location), nil
}
