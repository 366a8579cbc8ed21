package reports

import (
	"context"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/models"
	"github.com/shopspring/decimal"
)

// GatewaySource reads dashboard and activity data through the Remote Data Gateway.
type GatewaySource struct {
	Records gateway.Records
}

func NewGatewaySource(records gateway.Records) *GatewaySource {
	return &GatewaySource{Records: records}
}

func (s *GatewaySource) CountClients(ctx context.Context, status models.ClientStatus) (int64, error) {
	return s.Records.Count(ctx, gateway.From(&models.Client{}).Eq("status", status))
}

func (s *GatewaySource) CountLoans(ctx context.Context, statuses ...models.LoanStatus) (int64, error) {
	return s.Records.Count(ctx, gateway.From(&models.Loan{}).In("status", statuses))
}

func (s *GatewaySource) CountBranches(ctx context.Context) (int64, error) {
	return s.Records.Count(ctx, gateway.From(&models.Branch{}))
}

func (s *GatewaySource) SumLoanAmounts(ctx context.Context, statuses ...models.LoanStatus) (decimal.Decimal, error) {
	return s.Records.Sum(ctx, gateway.From(&models.Loan{}).In("status", statuses), "amount")
}

func (s *GatewaySource) SumRepayments(ctx context.Context, from, to time.Time, paidOnly bool) (decimal.Decimal, error) {
	q := gateway.From(&models.LoanRepayment{}).
		Where("due_date", gateway.OpGte, from.UTC()).
		Where("due_date", gateway.OpLt, to.UTC())
	if paidOnly {
		q = q.Eq("is_paid", true)
	}
	return s.Records.Sum(ctx, q, "amount")
}

func (s *GatewaySource) LoansDisbursedBetween(ctx context.Context, from, to time.Time) ([]models.Loan, error) {
	var loans []models.Loan
	q := gateway.From(&models.Loan{}).
		Where("disbursed_at", gateway.OpGte, from.UTC()).
		Where("disbursed_at", gateway.OpLt, to.UTC()).
		OrderBy("disbursed_at", false)
	if err := s.Records.Select(ctx, q, &loans); err != nil {
		return nil, err
	}
	return loans, nil
}

func (s *GatewaySource) RecentLoans(ctx context.Context, limit int) ([]models.Loan, error) {
	var loans []models.Loan
	// same timestamp the feed shows for each status: disbursed, then approved, then applied
	q := gateway.From(&models.Loan{}).
		OrderByFirstOf(true, "disbursed_at", "approved_at", "created_at").
		OrderBy("id", true).
		Take(limit).
		With("Client")
	if err := s.Records.Select(ctx, q, &loans); err != nil {
		return nil, err
	}
	return loans, nil
}

func (s *GatewaySource) RecentRepayments(ctx context.Context, limit int) ([]models.LoanRepayment, error) {
	var repayments []models.LoanRepayment
	q := gateway.From(&models.LoanRepayment{}).
		Eq("is_paid", true).
		OrderBy("paid_date", true).
		Take(limit).
		With("Loan", "Loan.Client")
	if err := s.Records.Select(ctx, q, &repayments); err != nil {
		return nil, err
	}
	return repayments, nil
}

func (s *GatewaySource) RecentClients(ctx context.Context, limit int) ([]models.Client, error) {
	var clients []models.Client
	q := gateway.From(&models.Client{}).OrderBy("created_at", true).Take(limit)
	if err := s.Records.Select(ctx, q, &clients); err != nil {
		return nil, err
	}
	return clients, nil
}
