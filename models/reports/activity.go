package reports

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/models"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultActivityLimit = 5
	MaxActivityLimit     = 50
)

type ActivityType string

const (
	ActivityLoanApplied       ActivityType = "loan_applied"
	ActivityLoanApproved      ActivityType = "loan_approved"
	ActivityLoanDisbursed     ActivityType = "loan_disbursed"
	ActivityClientRegistered  ActivityType = "client_registered"
	ActivityRepaymentReceived ActivityType = "repayment_received"
)

type ActivityItem struct {
	ID          string           `json:"id"`
	Type        ActivityType     `json:"type"`
	Description string           `json:"description"`
	Timestamp   time.Time        `json:"timestamp"`
	User        string           `json:"user"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
}

// ActivitySource returns each slice ordered most recent first, at most limit long.
type ActivitySource interface {
	RecentLoans(ctx context.Context, limit int) ([]models.Loan, error)
	RecentRepayments(ctx context.Context, limit int) ([]models.LoanRepayment, error)
	RecentClients(ctx context.Context, limit int) ([]models.Client, error)
}

func NormalizeActivityLimit(limit int) int {
	if limit <= 0 {
		return DefaultActivityLimit
	}
	return min(limit, MaxActivityLimit)
}

// GetRecentActivity merges the latest loans, paid repayments and new clients into one
// feed, newest first. Equal timestamps keep the merge order: loans, repayments, clients.
func GetRecentActivity(ctx context.Context, src ActivitySource, limit int) ([]ActivityItem, error) {
	limit = NormalizeActivityLimit(limit)
	ctx, span := tracer.Start(ctx, "reports.GetRecentActivity")
	defer span.End()

	var (
		loans      []models.Loan
		repayments []models.LoanRepayment
		clients    []models.Client
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		loans, err = src.RecentLoans(gctx, limit)
		return err
	})
	g.Go(func() (err error) {
		repayments, err = src.RecentRepayments(gctx, limit)
		return err
	})
	g.Go(func() (err error) {
		clients, err = src.RecentClients(gctx, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	items := make([]ActivityItem, 0, len(loans)+len(repayments)+len(clients))
	for _, l := range loans {
		items = append(items, loanActivity(l))
	}
	for _, r := range repayments {
		if !r.IsPaid {
			continue
		}
		items = append(items, repaymentActivity(r))
	}
	for _, c := range clients {
		items = append(items, clientActivity(c))
	}

	slices.SortStableFunc(items, func(a, b ActivityItem) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func loanActivity(l models.Loan) ActivityItem {
	amount := l.Amount
	item := ActivityItem{
		ID:        fmt.Sprintf("loan-%d", l.ID),
		Timestamp: l.CreatedAt,
		User:      l.ClientName(),
		Amount:    &amount,
	}
	who := displayName(item.User)
	switch l.Status {
	case models.LoanStatusApproved:
		item.Type = ActivityLoanApproved
		item.Timestamp = timeOr(l.ApprovedAt, l.CreatedAt)
		item.Description = fmt.Sprintf("Loan of %s approved for %s", utils.FormatCurrency(l.Amount), who)
	case models.LoanStatusDisbursed, models.LoanStatusActive, models.LoanStatusCompleted, models.LoanStatusDefaulted:
		item.Type = ActivityLoanDisbursed
		item.Timestamp = timeOr(l.DisbursedAt, l.CreatedAt)
		item.Description = fmt.Sprintf("%s disbursed to %s", utils.FormatCurrency(l.Amount), who)
	default:
		item.Type = ActivityLoanApplied
		item.Description = fmt.Sprintf("%s applied for a loan of %s", who, utils.FormatCurrency(l.Amount))
	}
	return item
}

func repaymentActivity(r models.LoanRepayment) ActivityItem {
	amount := r.Amount
	user := r.ClientName()
	return ActivityItem{
		ID:          fmt.Sprintf("repayment-%d", r.ID),
		Type:        ActivityRepaymentReceived,
		Description: fmt.Sprintf("Repayment of %s received from %s", utils.FormatCurrency(r.Amount), displayName(user)),
		Timestamp:   timeOr(r.PaidDate, r.DueDate),
		User:        user,
		Amount:      &amount,
	}
}

func clientActivity(c models.Client) ActivityItem {
	return ActivityItem{
		ID:          fmt.Sprintf("client-%d", c.ID),
		Type:        ActivityClientRegistered,
		Description: fmt.Sprintf("New client %s registered", displayName(c.FullName())),
		Timestamp:   c.CreatedAt,
		User:        c.FullName(),
	}
}

func timeOr(t *time.Time, fallback time.Time) time.Time {
	if t == nil || t.IsZero() {
		return fallback
	}
	return *t
}

func displayName(name string) string {
	if name == "" {
		return "Unknown client"
	}
	return name
}
