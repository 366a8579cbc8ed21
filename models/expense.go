package models

import (
	"context"
	"strings"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/shopspring/decimal"
)

type Expense struct {
	ID          int             `gorm:"primary_key" json:"id"`
	BranchId    int             `gorm:"index;not null" json:"branch_id"`
	Category    string          `gorm:"index;size:100;not null" json:"category"`
	Description string          `gorm:"type:text" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	ExpenseDate time.Time       `gorm:"index;not null" json:"expense_date"`
	ReceiptUrl  string          `gorm:"size:500" json:"receipt_url"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewExpense struct {
	BranchId    int             `json:"branch_id"`
	Category    string          `json:"category" validate:"required,max=100"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	ExpenseDate time.Time       `json:"expense_date" validate:"required"`
	ReceiptUrl  string          `json:"receipt_url" validate:"omitempty,url"`
}

func (input *NewExpense) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.Amount.IsPositive() {
		return &utils.ValidationError{Fields: map[string]string{"amount": "gt"}, Msg: "amount must be greater than zero"}
	}
	return nil
}

func CreateExpense(ctx context.Context, input *NewExpense) (*Expense, error) {
	g, err := records()
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	branchId, err := resolveBranchId(ctx, input.BranchId)
	if err != nil {
		return nil, err
	}
	expense := Expense{
		BranchId:    branchId,
		Category:    strings.TrimSpace(input.Category),
		Description: input.Description,
		Amount:      input.Amount,
		ExpenseDate: input.ExpenseDate.UTC(),
		ReceiptUrl:  input.ReceiptUrl,
	}
	if err := g.Insert(ctx, &expense); err != nil {
		return nil, err
	}
	return &expense, nil
}

func UpdateExpense(ctx context.Context, id int, input *NewExpense) (*Expense, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	return updateResource[Expense](ctx, id, map[string]any{
		"category":     strings.TrimSpace(input.Category),
		"description":  input.Description,
		"amount":       input.Amount,
		"expense_date": input.ExpenseDate.UTC(),
		"receipt_url":  input.ReceiptUrl,
	})
}

func DeleteExpense(ctx context.Context, id int) (*Expense, error) {
	return DeleteResource[Expense](ctx, id)
}

func GetExpense(ctx context.Context, id int) (*Expense, error) {
	return GetResource[Expense](ctx, id)
}

func ExpensesQuery(params ListParams) gateway.Query {
	params = params.normalized()
	q := gateway.From(&Expense{}).Search(params.Search, "category", "description").OrderBy("expense_date", true)
	if params.BranchId > 0 {
		q = q.Eq("branch_id", params.BranchId)
	}
	return q
}

func ListExpenses(ctx context.Context, params ListParams) (*ListResult[Expense], error) {
	return ListResources[Expense](ctx, ExpensesQuery(params), params)
}
