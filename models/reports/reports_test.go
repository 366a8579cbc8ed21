package reports

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/models"
	"github.com/DataGeek404/micro-finance-app-sub001/render"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	clients    int64
	loans      map[models.LoanStatus]int64
	branches   int64
	disbursed  decimal.Decimal
	expected   decimal.Decimal
	received   decimal.Decimal
	window     []models.Loan
	windowFrom time.Time
	windowTo   time.Time
	failOn     string

	recentLoans      []models.Loan
	recentRepayments []models.LoanRepayment
	recentClients    []models.Client
}

var errSource = errors.New("store unreachable")

func (f *fakeSource) fail(name string) error {
	if f.failOn == name {
		return errSource
	}
	return nil
}

func (f *fakeSource) CountClients(ctx context.Context, status models.ClientStatus) (int64, error) {
	return f.clients, f.fail("clients")
}

func (f *fakeSource) CountLoans(ctx context.Context, statuses ...models.LoanStatus) (int64, error) {
	var n int64
	for _, s := range statuses {
		n += f.loans[s]
	}
	return n, f.fail("loans")
}

func (f *fakeSource) CountBranches(ctx context.Context) (int64, error) {
	return f.branches, f.fail("branches")
}

func (f *fakeSource) SumLoanAmounts(ctx context.Context, statuses ...models.LoanStatus) (decimal.Decimal, error) {
	return f.disbursed, f.fail("disbursed")
}

func (f *fakeSource) SumRepayments(ctx context.Context, from, to time.Time, paidOnly bool) (decimal.Decimal, error) {
	if paidOnly {
		return f.received, f.fail("received")
	}
	return f.expected, f.fail("expected")
}

func (f *fakeSource) LoansDisbursedBetween(ctx context.Context, from, to time.Time) ([]models.Loan, error) {
	f.windowFrom, f.windowTo = from, to
	return f.window, f.fail("window")
}

func (f *fakeSource) RecentLoans(ctx context.Context, limit int) ([]models.Loan, error) {
	return capped(f.recentLoans, limit), f.fail("recent_loans")
}

func (f *fakeSource) RecentRepayments(ctx context.Context, limit int) ([]models.LoanRepayment, error) {
	return capped(f.recentRepayments, limit), f.fail("recent_repayments")
}

func (f *fakeSource) RecentClients(ctx context.Context, limit int) ([]models.Client, error) {
	return capped(f.recentClients, limit), f.fail("recent_clients")
}

func capped[T any](items []T, limit int) []T {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

func ptr[T any](v T) *T { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestGetDashboardStats_Counts(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	src := &fakeSource{
		clients:   42,
		loans:     map[models.LoanStatus]int64{models.LoanStatusActive: 7, models.LoanStatusDisbursed: 3, models.LoanStatusPending: 4},
		branches:  5,
		disbursed: dec("25000"),
		expected:  dec("1000"),
		received:  dec("750"),
	}

	stats, err := GetDashboardStats(context.Background(), src, now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, int64(42), stats.ActiveClients)
	assert.Equal(t, int64(10), stats.ActiveLoans)
	assert.Equal(t, int64(4), stats.PendingLoans)
	assert.Equal(t, int64(5), stats.TotalBranches)
	assert.True(t, dec("25000").Equal(stats.TotalDisbursed))
	assert.Equal(t, "75", stats.RepaymentRate.String())
	assert.Equal(t, now, stats.GeneratedAt)
}

func TestRepaymentRate(t *testing.T) {
	assert.Equal(t, "75", RepaymentRate(dec("1000"), dec("750")).String())
	assert.Equal(t, "100", RepaymentRate(decimal.Zero, decimal.Zero).String())
	assert.Equal(t, "100", RepaymentRate(decimal.Zero, dec("50")).String())
	assert.Equal(t, "33.33", RepaymentRate(dec("300"), dec("100")).String())
}

func TestGetDashboardStats_DailySeries(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	src := &fakeSource{window: []models.Loan{
		{ID: 1, Amount: dec("1000"), InterestRate: dec("12"), DisbursedAt: ptr(time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC))},
		{ID: 2, Amount: dec("500"), InterestRate: dec("10"), DisbursedAt: ptr(time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC))},
		{ID: 3, Amount: dec("200"), InterestRate: dec("5"), DisbursedAt: ptr(time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC))},
		{ID: 4, Amount: dec("999"), InterestRate: dec("5")},
	}}

	stats, err := GetDashboardStats(context.Background(), src, now, time.UTC)
	require.NoError(t, err)
	require.Len(t, stats.DailyStats, DailySeriesDays)

	assert.Equal(t, "2024-02-10", stats.DailyStats[0].Date)
	assert.Equal(t, "2024-03-10", stats.DailyStats[DailySeriesDays-1].Date)
	for i := 1; i < len(stats.DailyStats); i++ {
		prev, _ := time.Parse("2006-01-02", stats.DailyStats[i-1].Date)
		cur, _ := time.Parse("2006-01-02", stats.DailyStats[i].Date)
		assert.Equal(t, prev.AddDate(0, 0, 1), cur, "point %d", i)
	}

	last := stats.DailyStats[DailySeriesDays-1]
	assert.Equal(t, "1500", last.Disbursement.String())
	assert.Equal(t, "170", last.Profit.String())
	assert.Equal(t, "200", stats.DailyStats[0].Disbursement.String())
	assert.Equal(t, "10", stats.DailyStats[0].Profit.String())
	assert.True(t, stats.DailyStats[15].Disbursement.IsZero())

	assert.Equal(t, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), src.windowFrom)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), src.windowTo)
}

func TestProfitIsFlatPercentOfPrincipal(t *testing.T) {
	loan := models.Loan{Amount: dec("1000"), InterestRate: dec("12")}
	assert.Equal(t, "120", loan.Profit().String())
}

func TestGetDashboardStats_BucketsInReportTimezone(t *testing.T) {
	accra, err := time.LoadLocation("Africa/Accra")
	require.NoError(t, err)
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 20:00 UTC on the 9th is already the 10th in Tokyo.
	disbursedAt := time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC)
	now := time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)
	loans := []models.Loan{{Amount: dec("100"), InterestRate: dec("10"), DisbursedAt: &disbursedAt}}

	stats, err := GetDashboardStats(context.Background(), &fakeSource{window: loans}, now, accra)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", stats.DailyStats[DailySeriesDays-1].Date)
	assert.Equal(t, "100", stats.DailyStats[DailySeriesDays-2].Disbursement.String())

	stats, err = GetDashboardStats(context.Background(), &fakeSource{window: loans}, now, tokyo)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", stats.DailyStats[DailySeriesDays-1].Date)
	assert.Equal(t, "100", stats.DailyStats[DailySeriesDays-1].Disbursement.String())
}

func TestGetDashboardStats_AnyFailureAbortsSnapshot(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	for _, name := range []string{"clients", "loans", "branches", "disbursed", "expected", "received", "window"} {
		t.Run(name, func(t *testing.T) {
			stats, err := GetDashboardStats(context.Background(), &fakeSource{clients: 3, failOn: name}, now, time.UTC)
			assert.ErrorIs(t, err, errSource)
			assert.Nil(t, stats)
		})
	}
}

func TestDefaultDashboardStats(t *testing.T) {
	now := time.Date(2024, 1, 5, 23, 30, 0, 0, time.UTC)
	stats := DefaultDashboardStats(now, nil)
	assert.Zero(t, stats.ActiveClients)
	assert.Zero(t, stats.ActiveLoans)
	assert.True(t, stats.TotalDisbursed.IsZero())
	assert.Equal(t, "100", stats.RepaymentRate.String())
	require.Len(t, stats.DailyStats, DailySeriesDays)
	assert.Equal(t, "2023-12-07", stats.DailyStats[0].Date)
	assert.Equal(t, "2024-01-05", stats.DailyStats[DailySeriesDays-1].Date)
	for _, p := range stats.DailyStats {
		assert.True(t, p.Disbursement.IsZero())
		assert.True(t, p.Profit.IsZero())
	}
}

func activityFixture(base time.Time) *fakeSource {
	client := &models.Client{FirstName: "Ama", LastName: "Mensah"}
	loanFor := func(l models.Loan) models.Loan {
		l.Client = client
		return l
	}
	return &fakeSource{
		recentLoans: []models.Loan{
			loanFor(models.Loan{ID: 1, Amount: dec("1000"), Status: models.LoanStatusPending, CreatedAt: base.Add(-1 * time.Hour)}),
			loanFor(models.Loan{ID: 2, Amount: dec("2500"), Status: models.LoanStatusApproved, CreatedAt: base.Add(-48 * time.Hour), ApprovedAt: ptr(base.Add(-2 * time.Hour))}),
			loanFor(models.Loan{ID: 3, Amount: dec("400"), Status: models.LoanStatusActive, CreatedAt: base.Add(-96 * time.Hour), DisbursedAt: ptr(base.Add(-5 * time.Hour))}),
			{ID: 4, Amount: dec("300"), Status: models.LoanStatusRejected, CreatedAt: base.Add(-7 * time.Hour)},
		},
		recentRepayments: []models.LoanRepayment{
			{ID: 9, Amount: dec("93.33"), IsPaid: true, PaidDate: ptr(base.Add(-3 * time.Hour)), Loan: &models.Loan{Client: client}},
			{ID: 10, Amount: dec("50"), IsPaid: false, DueDate: base},
		},
		recentClients: []models.Client{
			{ID: 7, FirstName: "Kofi", LastName: "Asante", CreatedAt: base.Add(-4 * time.Hour)},
			{ID: 8, FirstName: "Esi", CreatedAt: base.Add(-1 * time.Hour)},
		},
	}
}

func TestGetRecentActivity_MergesNewestFirst(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	items, err := GetRecentActivity(context.Background(), activityFixture(base), 10)
	require.NoError(t, err)

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	// loan-1 and client-8 share a timestamp; the loan was merged first.
	assert.Equal(t, []string{"loan-1", "client-8", "loan-2", "repayment-9", "client-7", "loan-3", "loan-4"}, ids)

	for i := 1; i < len(items); i++ {
		assert.False(t, items[i].Timestamp.After(items[i-1].Timestamp))
	}

	byID := make(map[string]ActivityItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	assert.Equal(t, ActivityLoanApplied, byID["loan-1"].Type)
	assert.Equal(t, "Ama Mensah applied for a loan of GH₵ 1,000.00", byID["loan-1"].Description)
	assert.Equal(t, ActivityLoanApproved, byID["loan-2"].Type)
	assert.Equal(t, "Loan of GH₵ 2,500.00 approved for Ama Mensah", byID["loan-2"].Description)
	assert.Equal(t, ActivityLoanDisbursed, byID["loan-3"].Type)
	assert.Equal(t, base.Add(-5*time.Hour), byID["loan-3"].Timestamp)
	assert.Equal(t, ActivityLoanApplied, byID["loan-4"].Type)
	assert.Equal(t, "Unknown client applied for a loan of GH₵ 300.00", byID["loan-4"].Description)
	assert.Equal(t, ActivityRepaymentReceived, byID["repayment-9"].Type)
	assert.Equal(t, "Repayment of GH₵ 93.33 received from Ama Mensah", byID["repayment-9"].Description)
	assert.Equal(t, "Ama Mensah", byID["repayment-9"].User)
	assert.Equal(t, ActivityClientRegistered, byID["client-7"].Type)
	assert.Equal(t, "New client Kofi Asante registered", byID["client-7"].Description)
	assert.Nil(t, byID["client-7"].Amount)
	require.NotNil(t, byID["loan-1"].Amount)
	assert.Equal(t, "1000", byID["loan-1"].Amount.String())
	_, unpaid := byID["repayment-10"]
	assert.False(t, unpaid)
}

func TestGetRecentActivity_LimitAndDefaults(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	items, err := GetRecentActivity(context.Background(), activityFixture(base), 3)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	items, err = GetRecentActivity(context.Background(), activityFixture(base), 0)
	require.NoError(t, err)
	assert.Len(t, items, DefaultActivityLimit)

	assert.Equal(t, MaxActivityLimit, NormalizeActivityLimit(500))
	assert.Equal(t, DefaultActivityLimit, NormalizeActivityLimit(-1))
	assert.Equal(t, 12, NormalizeActivityLimit(12))

	items, err = GetRecentActivity(context.Background(), &fakeSource{}, 5)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestGetRecentActivity_FailsFast(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, name := range []string{"recent_loans", "recent_repayments", "recent_clients"} {
		src := activityFixture(base)
		src.failOn = name
		items, err := GetRecentActivity(context.Background(), src, 5)
		assert.ErrorIs(t, err, errSource, name)
		assert.Nil(t, items, name)
	}
}

// fakeRecords answers Select with canned rows and remembers the last query. Count reports total.
type fakeRecords struct {
	gateway.Records
	clients    []models.Client
	loans      []models.Loan
	repayments []models.LoanRepayment
	expenses   []models.Expense
	total      int64
	lastQuery  gateway.Query
	err        error
}

func (f *fakeRecords) Count(ctx context.Context, q gateway.Query) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.total, nil
}

func (f *fakeRecords) Select(ctx context.Context, q gateway.Query, dest any) error {
	f.lastQuery = q
	if f.err != nil {
		return f.err
	}
	switch d := dest.(type) {
	case *[]models.Client:
		*d = f.clients
	case *[]models.Loan:
		*d = f.loans
	case *[]models.LoanRepayment:
		*d = f.repayments
	case *[]models.Expense:
		*d = f.expenses
	case *[]models.Branch, *[]models.Payroll:
	default:
		return fmt.Errorf("unexpected dest %T", dest)
	}
	return nil
}

func TestBuildReport_Loans(t *testing.T) {
	disbursed := time.Date(2024, 5, 2, 23, 30, 0, 0, time.UTC)
	records := &fakeRecords{loans: []models.Loan{
		{ID: 1, Amount: dec("1000"), InterestRate: dec("12"), TermMonths: 12, Status: models.LoanStatusActive, DisbursedAt: &disbursed,
			Client: &models.Client{FirstName: "Ama", LastName: "Mensah"}},
		{ID: 2, Amount: dec("500"), InterestRate: dec("10"), TermMonths: 6, Status: models.LoanStatusPending},
	}}
	now := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)

	doc, err := BuildReport(context.Background(), records, "Loans", ReportOptions{OrgName: "Sika", Now: now})
	require.NoError(t, err)
	assert.Equal(t, "Loans Report", doc.Title)
	assert.Equal(t, "Sika", doc.OrgName)
	assert.Equal(t, "As of 20 May 2024", doc.Subtitle)
	assert.Equal(t, MaxReportRows, records.lastQuery.Limit)

	cells := doc.Cells(doc.ResolvedColumns())
	require.Len(t, cells, 2)
	assert.Equal(t, []string{"1", "Ama Mensah", "GH₵ 1,000.00", "12.0%", "GH₵ 120.00", "12", "ACTIVE", "02 May 2024", "-"}, cells[0])
	assert.Equal(t, "Unknown client", cells[1][1])

	summary := map[string]string{}
	for _, s := range doc.Summary {
		summary[s.Label] = s.Display()
	}
	assert.Equal(t, "2", summary["Loans"])
	assert.Equal(t, "GH₵ 1,500.00", summary["Total principal"])
	assert.Equal(t, "GH₵ 170.00", summary["Expected profit"])
	assert.Equal(t, "GH₵ 1,000.00", summary["Outstanding principal"])
}

func TestBuildReport_DatesFollowReportTimezone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	disbursed := time.Date(2024, 5, 2, 23, 30, 0, 0, time.UTC)
	records := &fakeRecords{loans: []models.Loan{{ID: 1, Amount: dec("10"), DisbursedAt: &disbursed}}}

	doc, err := BuildReport(context.Background(), records, "loans", ReportOptions{Location: tokyo})
	require.NoError(t, err)
	assert.Equal(t, "03 May 2024", doc.Cells(doc.ResolvedColumns())[0][7])
}

func TestBuildReport_PeriodFilter(t *testing.T) {
	records := &fakeRecords{}
	from := time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	doc, err := BuildReport(context.Background(), records, "expenses", ReportOptions{From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, "01 Jan 2024 to 31 Jan 2024", doc.Subtitle)
	assert.Empty(t, doc.Rows)

	var bounds []gateway.Filter
	for _, f := range records.lastQuery.Filters {
		if f.Column == "expense_date" {
			bounds = append(bounds, f)
		}
	}
	require.Len(t, bounds, 2)
	assert.Equal(t, gateway.OpGte, bounds[0].Op)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), bounds[0].Value)
	assert.Equal(t, gateway.OpLt, bounds[1].Op)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), bounds[1].Value)

	_, err = render.EncodeCSV(doc)
	assert.ErrorIs(t, err, render.ErrEmptyDataset)
}

func TestBuildReport_RepaymentsSummary(t *testing.T) {
	paid := time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC)
	records := &fakeRecords{repayments: []models.LoanRepayment{
		{ID: 1, LoanId: 3, Amount: dec("750"), IsPaid: true, PaidDate: &paid, DueDate: paid},
		{ID: 2, LoanId: 3, Amount: dec("250"), DueDate: paid.AddDate(0, 1, 0)},
	}}
	doc, err := BuildReport(context.Background(), records, "repayments", ReportOptions{})
	require.NoError(t, err)

	cells := doc.Cells(doc.ResolvedColumns())
	assert.Equal(t, "Yes", cells[0][6])
	assert.Equal(t, "-", cells[1][5])
	assert.Equal(t, "Collection rate", doc.Summary[3].Label)
	assert.Equal(t, "75.0%", doc.Summary[3].Display())
}

func TestBuildReport_ClientsCSVHeaderUsesKeys(t *testing.T) {
	records := &fakeRecords{clients: []models.Client{
		{ID: 1, FirstName: "Be,ta", LastName: "Owusu", MonthlyIncome: dec("1200"), Status: models.ClientStatusActive},
	}}
	doc, err := BuildReport(context.Background(), records, "clients", ReportOptions{})
	require.NoError(t, err)
	out, err := render.EncodeCSV(doc)
	require.NoError(t, err)
	assert.Contains(t, string(out), "id,name,phone,email,national_id,occupation,monthly_income,status,branch_id,created_at\n")
	assert.Contains(t, string(out), `1,"Be,ta Owusu",,,,,1200,ACTIVE,0,`)
}

func TestBuildReport_RefusesOversizedDataset(t *testing.T) {
	for _, name := range ReportNames() {
		records := &fakeRecords{total: MaxReportRows + 1}
		_, err := BuildReport(context.Background(), records, name, ReportOptions{})
		require.Error(t, err, name)
		assert.True(t, utils.IsValidationError(err), name)
		assert.Contains(t, err.Error(), "5001 rows", name)
		assert.Nil(t, records.lastQuery.Model, "%s should not load a partial dataset", name)
	}

	records := &fakeRecords{total: MaxReportRows, loans: []models.Loan{{ID: 1, Amount: dec("10")}}}
	doc, err := BuildReport(context.Background(), records, "loans", ReportOptions{})
	require.NoError(t, err)
	assert.Len(t, doc.Rows, 1)
}

func TestGatewaySource_RecentLoansFollowFeedTimestamp(t *testing.T) {
	records := &fakeRecords{}
	_, err := NewGatewaySource(records).RecentLoans(context.Background(), 5)
	require.NoError(t, err)

	require.Len(t, records.lastQuery.Orders, 2)
	assert.Equal(t, []string{"disbursed_at", "approved_at", "created_at"}, records.lastQuery.Orders[0].FirstOf)
	assert.True(t, records.lastQuery.Orders[0].Desc)
	assert.Equal(t, 5, records.lastQuery.Limit)
}

func TestBuildReport_Errors(t *testing.T) {
	_, err := BuildReport(context.Background(), &fakeRecords{}, "ledger", ReportOptions{})
	assert.ErrorIs(t, err, ErrUnknownReport)

	_, err = BuildReport(context.Background(), nil, "loans", ReportOptions{})
	assert.ErrorIs(t, err, models.ErrGatewayNotConfigured)

	_, err = BuildReport(context.Background(), &fakeRecords{err: gateway.ErrTimeout}, "branches", ReportOptions{})
	assert.ErrorIs(t, err, gateway.ErrTimeout)

	assert.Equal(t, []string{"branches", "clients", "expenses", "loans", "payroll", "repayments"}, ReportNames())
}
