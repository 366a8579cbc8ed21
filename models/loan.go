package models

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidLoanTransition = errors.New("invalid loan status transition")
	ErrLoanLocked            = errors.New("loan can only be edited while pending")
)

var hundred = decimal.NewFromInt(100)

type Loan struct {
	ID           int             `gorm:"primary_key" json:"id"`
	ClientId     int             `gorm:"index;not null" json:"client_id"`
	BranchId     int             `gorm:"index;not null" json:"branch_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	InterestRate decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"interest_rate"`
	TermMonths   int             `gorm:"not null" json:"term_months"`
	Purpose      string          `gorm:"size:500" json:"purpose"`
	Status       LoanStatus      `gorm:"index;size:20;not null;default:PENDING" json:"status"`
	ApprovedAt   *time.Time      `json:"approved_at"`
	DisbursedAt  *time.Time      `gorm:"index" json:"disbursed_at"`
	StartDate    *time.Time      `json:"start_date"`
	EndDate      *time.Time      `json:"end_date"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"index;autoUpdateTime" json:"updated_at"`

	Client *Client `gorm:"foreignKey:ClientId" json:"client,omitempty"`
}

// Profit is the flat interest earned over the life of the loan.
func (l Loan) Profit() decimal.Decimal {
	return l.Amount.Mul(l.InterestRate).Div(hundred)
}

func (l Loan) TotalDue() decimal.Decimal {
	return l.Amount.Add(l.Profit())
}

func (l Loan) ClientName() string {
	if l.Client == nil {
		return ""
	}
	return l.Client.FullName()
}

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusPending:   {LoanStatusApproved, LoanStatusRejected},
	LoanStatusApproved:  {LoanStatusDisbursed},
	LoanStatusDisbursed: {LoanStatusActive},
	LoanStatusActive:    {LoanStatusCompleted, LoanStatusDefaulted},
}

func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	return slices.Contains(loanTransitions[s], next)
}

// applyTransition moves the loan to next and returns the columns that changed.
func (l *Loan) applyTransition(next LoanStatus, now time.Time) (map[string]any, error) {
	if !l.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidLoanTransition, l.Status, next)
	}
	values := map[string]any{"status": next}
	switch next {
	case LoanStatusApproved:
		l.ApprovedAt = &now
		values["approved_at"] = now
	case LoanStatusDisbursed:
		end := now.AddDate(0, l.TermMonths, 0)
		l.DisbursedAt, l.StartDate, l.EndDate = &now, &now, &end
		values["disbursed_at"] = now
		values["start_date"] = now
		values["end_date"] = end
	}
	l.Status = next
	return values, nil
}

// BuildRepaymentSchedule splits amount plus interest into equal monthly installments
// starting one month after the start date. The last installment absorbs rounding.
func BuildRepaymentSchedule(l Loan) []LoanRepayment {
	if l.TermMonths <= 0 || l.StartDate == nil {
		return nil
	}
	total := l.TotalDue()
	installment := total.Div(decimal.NewFromInt(int64(l.TermMonths))).Round(2)
	schedule := make([]LoanRepayment, 0, l.TermMonths)
	for i := 1; i <= l.TermMonths; i++ {
		amount := installment
		if i == l.TermMonths {
			amount = total.Sub(installment.Mul(decimal.NewFromInt(int64(l.TermMonths - 1))))
		}
		schedule = append(schedule, LoanRepayment{
			LoanId:   l.ID,
			BranchId: l.BranchId,
			Amount:   amount,
			DueDate:  l.StartDate.AddDate(0, i, 0),
		})
	}
	return schedule
}

type NewLoan struct {
	ClientId     int             `json:"client_id" validate:"required,gt=0"`
	Amount       decimal.Decimal `json:"amount"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	TermMonths   int             `json:"term_months" validate:"required,min=1,max=360"`
	Purpose      string          `json:"purpose" validate:"max=500"`
}

func (input *NewLoan) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.Amount.IsPositive() {
		return &utils.ValidationError{Fields: map[string]string{"amount": "gt"}, Msg: "amount must be greater than zero"}
	}
	if input.InterestRate.IsNegative() || input.InterestRate.GreaterThan(hundred) {
		return &utils.ValidationError{Fields: map[string]string{"interest_rate": "range"}, Msg: "interest_rate must be between 0 and 100"}
	}
	return nil
}

func CreateLoan(ctx context.Context, input *NewLoan) (*Loan, error) {
	g, err := records()
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	client, err := GetClient(ctx, input.ClientId)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, &utils.ValidationError{Fields: map[string]string{"client_id": "exists"}, Msg: "client not found"}
		}
		return nil, err
	}
	if client.Status == ClientStatusBlacklisted {
		return nil, utils.NewValidationError("client is blacklisted")
	}

	loan := Loan{
		ClientId:     client.ID,
		BranchId:     client.BranchId,
		Amount:       input.Amount,
		InterestRate: input.InterestRate,
		TermMonths:   input.TermMonths,
		Purpose:      strings.TrimSpace(input.Purpose),
		Status:       LoanStatusPending,
	}
	if err := g.Insert(ctx, &loan); err != nil {
		return nil, err
	}
	loan.Client = client
	return &loan, nil
}

func UpdateLoan(ctx context.Context, id int, input *NewLoan) (*Loan, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	existing, err := GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != LoanStatusPending {
		return nil, ErrLoanLocked
	}
	if existing.ClientId != input.ClientId {
		return nil, &utils.ValidationError{Fields: map[string]string{"client_id": "immutable"}, Msg: "client_id cannot be changed"}
	}
	return updateResource[Loan](ctx, id, map[string]any{
		"amount":        input.Amount,
		"interest_rate": input.InterestRate,
		"term_months":   input.TermMonths,
		"purpose":       strings.TrimSpace(input.Purpose),
	})
}

func DeleteLoan(ctx context.Context, id int) (*Loan, error) {
	existing, err := GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != LoanStatusPending && existing.Status != LoanStatusRejected {
		return nil, fmt.Errorf("%w: cannot delete a %s loan", ErrLoanLocked, strings.ToLower(string(existing.Status)))
	}
	return DeleteResource[Loan](ctx, id)
}

func GetLoan(ctx context.Context, id int) (*Loan, error) {
	return GetResource[Loan](ctx, id, "Client")
}

// TransitionLoan applies one lifecycle step. Disbursement also writes the repayment
// schedule in the same transaction.
func TransitionLoan(ctx context.Context, id int, next LoanStatus) (*Loan, error) {
	g, err := records()
	if err != nil {
		return nil, err
	}
	loan, err := GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	current := loan.Status
	values, err := loan.applyTransition(next, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if next != LoanStatusDisbursed {
		if err := updateLoanFrom(ctx, g, id, current, next, values); err != nil {
			return nil, err
		}
		return loan, nil
	}

	schedule := BuildRepaymentSchedule(*loan)
	err = g.Transaction(ctx, func(tx gateway.Records) error {
		if err := updateLoanFrom(ctx, tx, id, current, next, values); err != nil {
			return err
		}
		if len(schedule) == 0 {
			return nil
		}
		return tx.Insert(ctx, &schedule)
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// updateLoanFrom writes values only while the loan is still in status current. A concurrent
// transition that got there first leaves no row to change.
func updateLoanFrom(ctx context.Context, g gateway.Records, id int, current, next LoanStatus, values map[string]any) error {
	changed, err := g.UpdateWhere(ctx, gateway.From(&Loan{}).Eq("id", id).Eq("status", current), values)
	if err != nil {
		return err
	}
	if changed == 0 {
		return fmt.Errorf("%w: %s -> %s, loan was changed by another request", ErrInvalidLoanTransition, current, next)
	}
	return nil
}

func LoansQuery(params ListParams) gateway.Query {
	params = params.normalized()
	q := gateway.From(&Loan{}).Search(params.Search, "purpose").OrderBy("created_at", true).With("Client")
	if params.Status != "" {
		q = q.Eq("status", params.Status)
	}
	if params.BranchId > 0 {
		q = q.Eq("branch_id", params.BranchId)
	}
	if params.ClientId > 0 {
		q = q.Eq("client_id", params.ClientId)
	}
	return q
}

func ListLoans(ctx context.Context, params ListParams) (*ListResult[Loan], error) {
	return ListResources[Loan](ctx, LoansQuery(params), params)
}
