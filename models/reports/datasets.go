package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/models"
	"github.com/DataGeek404/micro-finance-app-sub001/render"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/shopspring/decimal"
)

// MaxReportRows caps a single named report. Larger datasets are refused, never cut short.
const MaxReportRows = 5000

var ErrUnknownReport = errors.New("unknown report")

type ReportOptions struct {
	OrgName  string
	LogoURL  string
	Location *time.Location
	Now      time.Time
	// From and To bound the report's date column, inclusive calendar days in Location.
	From   *time.Time
	To     *time.Time
	Status string
	// BranchId narrows the report to one branch. Branch staff stay inside their own branch regardless.
	BranchId int
}

func (o ReportOptions) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

type datasetBuilder func(ctx context.Context, records gateway.Records, opts ReportOptions) (render.Document, error)

var datasets = map[string]datasetBuilder{
	"clients":    clientsReport,
	"loans":      loansReport,
	"repayments": repaymentsReport,
	"branches":   branchesReport,
	"expenses":   expensesReport,
	"payroll":    payrollReport,
}

func ReportNames() []string {
	names := make([]string, 0, len(datasets))
	for name := range datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildReport loads the named dataset through records and lays it out as a document.
func BuildReport(ctx context.Context, records gateway.Records, name string, opts ReportOptions) (render.Document, error) {
	build, ok := datasets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return render.Document{}, fmt.Errorf("%w: %q", ErrUnknownReport, name)
	}
	if records == nil {
		return render.Document{}, models.ErrGatewayNotConfigured
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	ctx, span := tracer.Start(ctx, "reports.BuildReport")
	defer span.End()
	started := time.Now()

	doc, err := build(ctx, records, opts)
	if err != nil {
		span.RecordError(err)
		return render.Document{}, err
	}
	doc.OrgName = opts.OrgName
	doc.LogoURL = opts.LogoURL
	doc.GeneratedAt = opts.Now.In(opts.location())
	if doc.Subtitle == "" {
		doc.Subtitle = periodSubtitle(opts)
	}
	logSlowReport(ctx, name, started, map[string]any{"rows": len(doc.Rows)})
	return doc, nil
}

func periodSubtitle(opts ReportOptions) string {
	loc := opts.location()
	switch {
	case opts.From != nil && opts.To != nil:
		return utils.FormatDateIn(*opts.From, loc) + " to " + utils.FormatDateIn(*opts.To, loc)
	case opts.From != nil:
		return "From " + utils.FormatDateIn(*opts.From, loc)
	case opts.To != nil:
		return "Up to " + utils.FormatDateIn(*opts.To, loc)
	}
	return "As of " + utils.FormatDateIn(opts.Now, loc)
}

// withPeriod bounds column to [From day start, day after To) in the report location.
func withPeriod(q gateway.Query, column string, opts ReportOptions) gateway.Query {
	loc := opts.location()
	if opts.From != nil {
		q = q.Where(column, gateway.OpGte, utils.StartOfDay(*opts.From, loc).UTC())
	}
	if opts.To != nil {
		q = q.Where(column, gateway.OpLt, utils.StartOfDay(*opts.To, loc).AddDate(0, 0, 1).UTC())
	}
	return q
}

func listParams(opts ReportOptions) models.ListParams {
	return models.ListParams{Status: opts.Status, BranchId: opts.BranchId}
}

// selectReport loads every row q matches into dest, refusing datasets above MaxReportRows.
func selectReport(ctx context.Context, records gateway.Records, q gateway.Query, dest any) error {
	total, err := records.Count(ctx, q)
	if err != nil {
		return err
	}
	if total > MaxReportRows {
		return utils.NewValidationError(fmt.Sprintf("report matches %d rows, more than the %d row limit; narrow the period or filter by branch", total, MaxReportRows))
	}
	return records.Select(ctx, q.Take(MaxReportRows), dest)
}

func dateIn(loc *time.Location) render.Formatter {
	return func(v any) string {
		switch t := v.(type) {
		case time.Time:
			return utils.FormatDateIn(t, loc)
		case *time.Time:
			if t == nil {
				return render.Placeholder
			}
			return utils.FormatDateIn(*t, loc)
		}
		return render.FormatValue(v)
	}
}

func clientsReport(ctx context.Context, records gateway.Records, opts ReportOptions) (render.Document, error) {
	var clients []models.Client
	q := withPeriod(models.ClientsQuery(listParams(opts)), "created_at", opts)
	if err := selectReport(ctx, records, q, &clients); err != nil {
		return render.Document{}, err
	}

	income := decimal.Zero
	var active int
	rows := make(render.Rows, 0, len(clients))
	for _, c := range clients {
		income = income.Add(c.MonthlyIncome)
		if c.Status == models.ClientStatusActive {
			active++
		}
		rows = append(rows, render.Row{
			{Key: "id", Value: c.ID},
			{Key: "name", Value: c.FullName()},
			{Key: "phone", Value: c.Phone},
			{Key: "email", Value: c.Email},
			{Key: "national_id", Value: c.NationalId},
			{Key: "occupation", Value: c.Occupation},
			{Key: "monthly_income", Value: c.MonthlyIncome},
			{Key: "status", Value: string(c.Status)},
			{Key: "branch_id", Value: c.BranchId},
			{Key: "created_at", Value: c.CreatedAt},
		})
	}
	return render.Document{
		Title: "Clients Report",
		Columns: []render.Column{
			{Key: "id", Label: "ID"},
			{Key: "name", Label: "Name"},
			{Key: "phone", Label: "Phone"},
			{Key: "email", Label: "Email"},
			{Key: "national_id", Label: "National ID"},
			{Key: "occupation", Label: "Occupation"},
			{Key: "monthly_income", Label: "Monthly Income", Format: "currency"},
			{Key: "status", Label: "Status"},
			{Key: "branch_id", Label: "Branch"},
			{Key: "created_at", Label: "Registered", Formatter: dateIn(opts.location())},
		},
		Rows: rows,
		Summary: render.Summary{
			{Label: "Total clients", Value: len(clients)},
			{Label: "Active clients", Value: active},
			{Label: "Combined monthly income", Value: income, Format: "currency"},
		},
	}, nil
}

func loansReport(ctx context.Context, records gateway.Records, opts ReportOptions) (render.Document, error) {
	var loans []models.Loan
	q := withPeriod(models.LoansQuery(listParams(opts)), "created_at", opts)
	if err := selectReport(ctx, records, q, &loans); err != nil {
		return render.Document{}, err
	}

	principal, profit, outstanding := decimal.Zero, decimal.Zero, decimal.Zero
	rows := make(render.Rows, 0, len(loans))
	for _, l := range loans {
		principal = principal.Add(l.Amount)
		profit = profit.Add(l.Profit())
		if l.Status == models.LoanStatusActive || l.Status == models.LoanStatusDisbursed {
			outstanding = outstanding.Add(l.Amount)
		}
		rows = append(rows, render.Row{
			{Key: "id", Value: l.ID},
			{Key: "client", Value: displayName(l.ClientName())},
			{Key: "amount", Value: l.Amount},
			{Key: "interest_rate", Value: l.InterestRate},
			{Key: "profit", Value: l.Profit()},
			{Key: "term_months", Value: l.TermMonths},
			{Key: "status", Value: string(l.Status)},
			{Key: "disbursed_at", Value: l.DisbursedAt},
			{Key: "end_date", Value: l.EndDate},
		})
	}
	dates := dateIn(opts.location())
	return render.Document{
		Title: "Loans Report",
		Columns: []render.Column{
			{Key: "id", Label: "ID"},
			{Key: "client", Label: "Client"},
			{Key: "amount", Label: "Amount", Format: "currency"},
			{Key: "interest_rate", Label: "Rate", Format: "percent"},
			{Key: "profit", Label: "Profit", Format: "currency"},
			{Key: "term_months", Label: "Term (months)"},
			{Key: "status", Label: "Status"},
			{Key: "disbursed_at", Label: "Disbursed", Formatter: dates},
			{Key: "end_date", Label: "Ends", Formatter: dates},
		},
		Rows: rows,
		Summary: render.Summary{
			{Label: "Loans", Value: len(loans)},
			{Label: "Total principal", Value: principal, Format: "currency"},
			{Label: "Expected profit", Value: profit, Format: "currency"},
			{Label: "Outstanding principal", Value: outstanding, Format: "currency"},
		},
	}, nil
}

func repaymentsReport(ctx context.Context, records gateway.Records, opts ReportOptions) (render.Document, error) {
	var repayments []models.LoanRepayment
	q := withPeriod(models.RepaymentsQuery(models.ListParams{BranchId: opts.BranchId}), "due_date", opts)
	if err := selectReport(ctx, records, q, &repayments); err != nil {
		return render.Document{}, err
	}

	due, received := decimal.Zero, decimal.Zero
	rows := make(render.Rows, 0, len(repayments))
	for _, r := range repayments {
		due = due.Add(r.Amount)
		if r.IsPaid {
			received = received.Add(r.Amount)
		}
		rows = append(rows, render.Row{
			{Key: "id", Value: r.ID},
			{Key: "loan_id", Value: r.LoanId},
			{Key: "client", Value: displayName(r.ClientName())},
			{Key: "amount", Value: r.Amount},
			{Key: "due_date", Value: r.DueDate},
			{Key: "paid_date", Value: r.PaidDate},
			{Key: "is_paid", Value: r.IsPaid},
		})
	}
	dates := dateIn(opts.location())
	return render.Document{
		Title: "Repayments Report",
		Columns: []render.Column{
			{Key: "id", Label: "ID"},
			{Key: "loan_id", Label: "Loan"},
			{Key: "client", Label: "Client"},
			{Key: "amount", Label: "Amount", Format: "currency"},
			{Key: "due_date", Label: "Due", Formatter: dates},
			{Key: "paid_date", Label: "Paid On", Formatter: dates},
			{Key: "is_paid", Label: "Paid"},
		},
		Rows: rows,
		Summary: render.Summary{
			{Label: "Installments", Value: len(repayments)},
			{Label: "Total due", Value: due, Format: "currency"},
			{Label: "Total received", Value: received, Format: "currency"},
			{Label: "Collection rate", Value: RepaymentRate(due, received), Format: "percent"},
		},
	}, nil
}

func branchesReport(ctx context.Context, records gateway.Records, opts ReportOptions) (render.Document, error) {
	var branches []models.Branch
	q := models.BranchesQuery(models.ListParams{Status: opts.Status})
	if err := selectReport(ctx, records, q, &branches); err != nil {
		return render.Document{}, err
	}

	var active int
	rows := make(render.Rows, 0, len(branches))
	for _, b := range branches {
		if b.Status == models.BranchStatusActive {
			active++
		}
		rows = append(rows, render.Row{
			{Key: "id", Value: b.ID},
			{Key: "code", Value: b.Code},
			{Key: "name", Value: b.Name},
			{Key: "phone", Value: b.Phone},
			{Key: "email", Value: b.Email},
			{Key: "manager_id", Value: b.ManagerId},
			{Key: "status", Value: string(b.Status)},
		})
	}
	return render.Document{
		Title: "Branches Report",
		Columns: []render.Column{
			{Key: "id", Label: "ID"},
			{Key: "code", Label: "Code"},
			{Key: "name", Label: "Name"},
			{Key: "phone", Label: "Phone"},
			{Key: "email", Label: "Email"},
			{Key: "manager_id", Label: "Manager"},
			{Key: "status", Label: "Status"},
		},
		Rows: rows,
		Summary: render.Summary{
			{Label: "Branches", Value: len(branches)},
			{Label: "Active branches", Value: active},
		},
	}, nil
}

func expensesReport(ctx context.Context, records gateway.Records, opts ReportOptions) (render.Document, error) {
	var expenses []models.Expense
	q := withPeriod(models.ExpensesQuery(models.ListParams{BranchId: opts.BranchId}), "expense_date", opts)
	if err := selectReport(ctx, records, q, &expenses); err != nil {
		return render.Document{}, err
	}

	total := decimal.Zero
	byCategory := make(map[string]decimal.Decimal)
	rows := make(render.Rows, 0, len(expenses))
	for _, e := range expenses {
		total = total.Add(e.Amount)
		byCategory[e.Category] = byCategory[e.Category].Add(e.Amount)
		rows = append(rows, render.Row{
			{Key: "id", Value: e.ID},
			{Key: "expense_date", Value: e.ExpenseDate},
			{Key: "category", Value: e.Category},
			{Key: "description", Value: e.Description},
			{Key: "amount", Value: e.Amount},
			{Key: "branch_id", Value: e.BranchId},
		})
	}

	summary := render.Summary{
		{Label: "Expenses", Value: len(expenses)},
		{Label: "Total amount", Value: total, Format: "currency"},
	}
	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		summary = append(summary, render.SummaryItem{Label: category, Value: byCategory[category], Format: "currency"})
	}

	return render.Document{
		Title: "Expenses Report",
		Columns: []render.Column{
			{Key: "id", Label: "ID"},
			{Key: "expense_date", Label: "Date", Formatter: dateIn(opts.location())},
			{Key: "category", Label: "Category"},
			{Key: "description", Label: "Description"},
			{Key: "amount", Label: "Amount", Format: "currency"},
			{Key: "branch_id", Label: "Branch"},
		},
		Rows:    rows,
		Summary: summary,
	}, nil
}

func payrollReport(ctx context.Context, records gateway.Records, opts ReportOptions) (render.Document, error) {
	var payrolls []models.Payroll
	q := models.PayrollsQuery(listParams(opts))
	loc := opts.location()
	if opts.From != nil {
		q = q.Where("period", gateway.OpGte, opts.From.In(loc).Format("2006-01"))
	}
	if opts.To != nil {
		q = q.Where("period", gateway.OpLt, opts.To.In(loc).AddDate(0, 1, 0).Format("2006-01"))
	}
	if err := selectReport(ctx, records, q, &payrolls); err != nil {
		return render.Document{}, err
	}

	net, paid := decimal.Zero, decimal.Zero
	rows := make(render.Rows, 0, len(payrolls))
	for _, p := range payrolls {
		net = net.Add(p.NetPay)
		if p.Status == models.PayrollStatusPaid {
			paid = paid.Add(p.NetPay)
		}
		rows = append(rows, render.Row{
			{Key: "id", Value: p.ID},
			{Key: "period", Value: p.Period},
			{Key: "staff_name", Value: p.StaffName},
			{Key: "basic_salary", Value: p.BasicSalary},
			{Key: "allowances", Value: p.Allowances},
			{Key: "deductions", Value: p.Deductions},
			{Key: "net_pay", Value: p.NetPay},
			{Key: "status", Value: string(p.Status)},
			{Key: "paid_at", Value: p.PaidAt},
		})
	}
	return render.Document{
		Title: "Payroll Report",
		Columns: []render.Column{
			{Key: "id", Label: "ID"},
			{Key: "period", Label: "Period"},
			{Key: "staff_name", Label: "Staff"},
			{Key: "basic_salary", Label: "Basic", Format: "currency"},
			{Key: "allowances", Label: "Allowances", Format: "currency"},
			{Key: "deductions", Label: "Deductions", Format: "currency"},
			{Key: "net_pay", Label: "Net Pay", Format: "currency"},
			{Key: "status", Label: "Status"},
			{Key: "paid_at", Label: "Paid On", Formatter: dateIn(loc)},
		},
		Rows: rows,
		Summary: render.Summary{
			{Label: "Entries", Value: len(payrolls)},
			{Label: "Total net pay", Value: net, Format: "currency"},
			{Label: "Paid out", Value: paid, Format: "currency"},
			{Label: "Outstanding", Value: net.Sub(paid), Format: "currency"},
		},
	}, nil
}
