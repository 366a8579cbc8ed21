package models

import (
	"context"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/shopspring/decimal"
)

type LoanRepayment struct {
	ID        int             `gorm:"primary_key" json:"id"`
	LoanId    int             `gorm:"index;not null" json:"loan_id"`
	BranchId  int             `gorm:"index;not null" json:"branch_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	DueDate   time.Time       `gorm:"index;not null" json:"due_date"`
	PaidDate  *time.Time      `gorm:"index" json:"paid_date"`
	IsPaid    bool            `gorm:"index;not null;default:false" json:"is_paid"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`

	Loan *Loan `gorm:"foreignKey:LoanId" json:"loan,omitempty"`
}

func (r LoanRepayment) ClientName() string {
	if r.Loan == nil {
		return ""
	}
	return r.Loan.ClientName()
}

type PayRepaymentInput struct {
	PaidDate *time.Time `json:"paid_date"`
}

// PayRepayment marks the installment paid. When it was the last open installment of an
// active loan the loan is completed in the same transaction.
func PayRepayment(ctx context.Context, id int, input *PayRepaymentInput) (*LoanRepayment, error) {
	g, err := records()
	if err != nil {
		return nil, err
	}
	repayment, err := GetResource[LoanRepayment](ctx, id)
	if err != nil {
		return nil, err
	}
	if repayment.IsPaid {
		return nil, utils.NewValidationError("repayment is already paid")
	}

	paidAt := time.Now().UTC()
	if input != nil && input.PaidDate != nil {
		if input.PaidDate.After(paidAt) {
			return nil, &utils.ValidationError{Fields: map[string]string{"paid_date": "lte"}, Msg: "paid_date cannot be in the future"}
		}
		paidAt = input.PaidDate.UTC()
	}

	err = g.Transaction(ctx, func(tx gateway.Records) error {
		paid, err := tx.UpdateWhere(ctx, gateway.From(&LoanRepayment{}).Eq("id", id).Eq("is_paid", false),
			map[string]any{"is_paid": true, "paid_date": paidAt})
		if err != nil {
			return err
		}
		if paid == 0 {
			return utils.NewValidationError("repayment is already paid")
		}
		open, err := tx.Count(ctx, gateway.From(&LoanRepayment{}).Eq("loan_id", repayment.LoanId).Eq("is_paid", false))
		if err != nil {
			return err
		}
		if open > 0 {
			return nil
		}
		var loan Loan
		if err := tx.First(ctx, gateway.From(&Loan{}).Eq("id", repayment.LoanId), &loan); err != nil {
			return err
		}
		if loan.Status != LoanStatusActive {
			return nil
		}
		values, err := loan.applyTransition(LoanStatusCompleted, paidAt)
		if err != nil {
			return err
		}
		// another payment may have completed the loan already
		_, err = tx.UpdateWhere(ctx, gateway.From(&Loan{}).Eq("id", loan.ID).Eq("status", LoanStatusActive), values)
		return err
	})
	if err != nil {
		return nil, err
	}
	repayment.IsPaid = true
	repayment.PaidDate = &paidAt
	return repayment, nil
}

func RepaymentsQuery(params ListParams) gateway.Query {
	params = params.normalized()
	q := gateway.From(&LoanRepayment{}).OrderBy("due_date", false).With("Loan", "Loan.Client")
	if params.LoanId > 0 {
		q = q.Eq("loan_id", params.LoanId)
	}
	if params.BranchId > 0 {
		q = q.Eq("branch_id", params.BranchId)
	}
	if params.IsPaid != nil {
		q = q.Eq("is_paid", *params.IsPaid)
	}
	return q
}

func ListRepayments(ctx context.Context, params ListParams) (*ListResult[LoanRepayment], error) {
	return ListResources[LoanRepayment](ctx, RepaymentsQuery(params), params)
}
