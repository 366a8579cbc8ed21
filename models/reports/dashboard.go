package reports

import (
	"context"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/models"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	DailySeriesDays  = 30
	seriesDateLayout = "2006-01-02"
)

var (
	hundred = decimal.NewFromInt(100)
	tracer  = otel.Tracer("github.com/DataGeek404/micro-finance-app-sub001/models/reports")
)

type DailyStatPoint struct {
	Date         string          `json:"date"`
	Disbursement decimal.Decimal `json:"disbursement"`
	Profit       decimal.Decimal `json:"profit"`
}

type DashboardStats struct {
	ActiveClients      int64            `json:"active_clients"`
	ActiveLoans        int64            `json:"active_loans"`
	PendingLoans       int64            `json:"pending_loans"`
	TotalBranches      int64            `json:"total_branches"`
	TotalDisbursed     decimal.Decimal  `json:"total_disbursed"`
	ExpectedRepayments decimal.Decimal  `json:"expected_repayments"`
	ReceivedRepayments decimal.Decimal  `json:"received_repayments"`
	RepaymentRate      decimal.Decimal  `json:"repayment_rate"`
	DailyStats         []DailyStatPoint `json:"daily_stats"`
	GeneratedAt        time.Time        `json:"generated_at"`
}

// DashboardSource is the set of reads the statistics snapshot needs.
type DashboardSource interface {
	CountClients(ctx context.Context, status models.ClientStatus) (int64, error)
	CountLoans(ctx context.Context, statuses ...models.LoanStatus) (int64, error)
	CountBranches(ctx context.Context) (int64, error)
	SumLoanAmounts(ctx context.Context, statuses ...models.LoanStatus) (decimal.Decimal, error)
	// SumRepayments totals installments due in [from, to); paidOnly restricts to paid ones.
	SumRepayments(ctx context.Context, from, to time.Time, paidOnly bool) (decimal.Decimal, error)
	LoansDisbursedBetween(ctx context.Context, from, to time.Time) ([]models.Loan, error)
}

// RepaymentRate is received/expected as a percentage, and 100 when nothing was expected.
func RepaymentRate(expected, received decimal.Decimal) decimal.Decimal {
	if !expected.IsPositive() {
		return hundred
	}
	return received.Div(expected).Mul(hundred).Round(2)
}

// GetDashboardStats computes the snapshot for now. Any failing read aborts the whole snapshot.
func GetDashboardStats(ctx context.Context, src DashboardSource, now time.Time, loc *time.Location) (*DashboardStats, error) {
	if loc == nil {
		loc = time.UTC
	}
	ctx, span := tracer.Start(ctx, "reports.GetDashboardStats")
	defer span.End()
	started := time.Now()
	defer logSlowReport(ctx, "dashboard_stats", started, nil)

	today := utils.StartOfDay(now, loc)
	windowStart := today.AddDate(0, 0, -(DailySeriesDays - 1))
	windowEnd := today.AddDate(0, 0, 1)
	monthStart, monthEnd := utils.MonthRange(now, loc)

	stats := DashboardStats{GeneratedAt: now}
	var disbursed []models.Loan

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.ActiveClients, err = src.CountClients(gctx, models.ClientStatusActive)
		return err
	})
	g.Go(func() (err error) {
		stats.ActiveLoans, err = src.CountLoans(gctx, models.OutstandingLoanStatuses...)
		return err
	})
	g.Go(func() (err error) {
		stats.PendingLoans, err = src.CountLoans(gctx, models.LoanStatusPending)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalBranches, err = src.CountBranches(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalDisbursed, err = src.SumLoanAmounts(gctx, models.OutstandingLoanStatuses...)
		return err
	})
	g.Go(func() (err error) {
		stats.ExpectedRepayments, err = src.SumRepayments(gctx, monthStart, monthEnd, false)
		return err
	})
	g.Go(func() (err error) {
		stats.ReceivedRepayments, err = src.SumRepayments(gctx, monthStart, monthEnd, true)
		return err
	})
	g.Go(func() (err error) {
		disbursed, err = src.LoansDisbursedBetween(gctx, windowStart, windowEnd)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dashboard stats failed")
		return nil, err
	}

	stats.RepaymentRate = RepaymentRate(stats.ExpectedRepayments, stats.ReceivedRepayments)
	stats.DailyStats = buildDailySeries(disbursed, today, loc)
	span.AddEvent("stats computed", trace.WithAttributes(
		attribute.Int("loans_in_window", len(disbursed)),
		attribute.Int64("active_loans", stats.ActiveLoans),
	))
	return &stats, nil
}

// DefaultDashboardStats is the snapshot of an empty dataset, returned alongside an error notice.
func DefaultDashboardStats(now time.Time, loc *time.Location) *DashboardStats {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardStats{
		RepaymentRate: RepaymentRate(decimal.Zero, decimal.Zero),
		DailyStats:    buildDailySeries(nil, utils.StartOfDay(now, loc), loc),
		GeneratedAt:   now,
	}
}

// buildDailySeries buckets loans by the calendar day of disbursement in loc and
// returns DailySeriesDays contiguous ascending points ending at today.
func buildDailySeries(loans []models.Loan, today time.Time, loc *time.Location) []DailyStatPoint {
	type bucket struct{ amount, profit decimal.Decimal }
	buckets := make(map[string]*bucket)
	for _, loan := range loans {
		if loan.DisbursedAt == nil {
			continue
		}
		key := loan.DisbursedAt.In(loc).Format(seriesDateLayout)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.amount = b.amount.Add(loan.Amount)
		b.profit = b.profit.Add(loan.Profit())
	}

	series := make([]DailyStatPoint, 0, DailySeriesDays)
	for i := DailySeriesDays - 1; i >= 0; i-- {
		key := today.AddDate(0, 0, -i).Format(seriesDateLayout)
		point := DailyStatPoint{Date: key, Disbursement: decimal.Zero, Profit: decimal.Zero}
		if b, ok := buckets[key]; ok {
			point.Disbursement, point.Profit = b.amount, b.profit
		}
		series = append(series, point)
	}
	return series
}
