package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"storekeep/backend/internal/domain"
	"storekeep/backend/internal/store"
)

func (s *Service) SalesReport(ctx context.Context, req domain.SalesReportRequest) (domain.SalesReport, error) {
	if req.From.IsZero() || req.To.IsZero() || !req.To.After(req.From) {
		return domain.SalesReport{}, fmt.Errorf("%w: report range must have from < to", store.ErrInvalidInput)
	}
	switch req.GroupBy {
	case domain.ReportGroupDay, domain.ReportGroupWeek, domain.ReportGroupMonth:
	default:
		return domain.SalesReport{}, fmt.Errorf("%w: unknown grouping %q", store.ErrInvalidInput, req.GroupBy)
	}

	key := fmt.Sprintf("%ssales:%s:%d:%d", reportKeyPrefix, req.GroupBy, req.From.Unix(), req.To.Unix())
	var report domain.SalesReport
	if s.cachedReport(ctx, key, &report) {
		return report, nil
	}

	sales, err := s.repo.ListSalesBetween(ctx, req.From.UTC(), req.To.UTC())
	if err != nil {
		return domain.SalesReport{}, err
	}

	buckets := map[string]*domain.TimeSeriesPoint{}
	for _, sale := range sales {
		label := bucketLabel(sale.CreatedAt, req.GroupBy)
		point, ok := buckets[label]
		if !ok {
			point = &domain.TimeSeriesPoint{Date: label}
			buckets[label] = point
		}
		point.TotalCents += sale.TotalCents
		point.Count++
	}

	report.Series = make([]domain.TimeSeriesPoint, 0, len(buckets))
	for _, point := range buckets {
		report.Series = append(report.Series, *point)
	}
	slices.SortFunc(report.Series, func(a, b domain.TimeSeriesPoint) int { return cmp.Compare(a.Date, b.Date) })

	s.storeReport(ctx, key, report)
	return report, nil
}

func (s *Service) PaymentsReport(ctx context.Context, req domain.PaymentsReportRequest) (domain.PaymentsReport, error) {
	if req.From.IsZero() || req.To.IsZero() || !req.To.After(req.From) {
		return domain.PaymentsReport{}, fmt.Errorf("%w: report range must have from < to", store.ErrInvalidInput)
	}

	key := fmt.Sprintf("%spayments:%d:%d", reportKeyPrefix, req.From.Unix(), req.To.Unix())
	var report domain.PaymentsReport
	if s.cachedReport(ctx, key, &report) {
		return report, nil
	}

	payments, err := s.repo.ListPaymentsBetween(ctx, req.From.UTC(), req.To.UTC())
	if err != nil {
		return domain.PaymentsReport{}, err
	}

	byMethod := map[string]*domain.PaymentSummary{}
	for _, p := range payments {
		summary, ok := byMethod[p.Method]
		if !ok {
			summary = &domain.PaymentSummary{Method: p.Method}
			byMethod[p.Method] = summary
		}
		summary.TotalCents += p.AmountCents
		summary.Count++
	}

	report.Summary = make([]domain.PaymentSummary, 0, len(byMethod))
	for _, summary := range byMethod {
		report.Summary = append(report.Summary, *summary)
	}
	slices.SortFunc(report.Summary, func(a, b domain.PaymentSummary) int {
		if c := cmp.Compare(b.TotalCents, a.TotalCents); c != 0 {
			return c
		}
		return cmp.Compare(a.Method, b.Method)
	})

	s.storeReport(ctx, key, report)
	return report, nil
}

// LowStockReport lists products whose stock is at or below threshold.
func (s *Service) LowStockReport(ctx context.Context, req domain.LowStockReportRequest) (domain.LowStockReport, error) {
	if req.Threshold < 0 {
		return domain.LowStockReport{}, store.ErrInvalidInput
	}

	key := fmt.Sprintf("%slow-stock:%d", reportKeyPrefix, req.Threshold)
	var report domain.LowStockReport
	if s.cachedReport(ctx, key, &report) {
		return report, nil
	}

	products, err := s.repo.ListProductsAtOrBelow(ctx, req.Threshold)
	if err != nil {
		return domain.LowStockReport{}, err
	}
	report.Items = make([]domain.LowStockItem, 0, len(products))
	for _, p := range products {
		report.Items = append(report.Items, domain.LowStockItem{ProductID: p.ID, Name: p.Name, Stock: p.Stock})
	}
	report.Total = len(report.Items)

	s.storeReport(ctx, key, report)
	return report, nil
}

func (s *Service) cachedReport(ctx context.Context, key string, dest any) bool {
	found, err := s.reports.Get(ctx, key, dest)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("report cache read failed")
		return false
	}
	return found
}

func (s *Service) storeReport(ctx context.Context, key string, value any) {
	if err := s.reports.Set(ctx, key, value, s.reportTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("report cache write failed")
	}
}

// bucketLabel truncates t to the start of its day, ISO week (Monday) or month.
func bucketLabel(t time.Time, groupBy string) string {
	t = t.UTC()
	switch groupBy {
	case domain.ReportGroupMonth:
		return t.Format("2006-01")
	case domain.ReportGroupWeek:
		offset := (int(t.Weekday()) + 6) % 7
		return t.AddDate(0, 0, -offset).Format("2006-01-02")
	default:
		return t.Format("2006-01-02")
	}
}
