package models

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/shopspring/decimal"
)

var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

type Payroll struct {
	ID          int             `gorm:"primary_key" json:"id"`
	BranchId    int             `gorm:"index;not null" json:"branch_id"`
	StaffName   string          `gorm:"index;size:150;not null" json:"staff_name"`
	Period      string          `gorm:"index;size:7;not null" json:"period"`
	BasicSalary decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"basic_salary"`
	Allowances  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"allowances"`
	Deductions  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"deductions"`
	NetPay      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"net_pay"`
	Status      PayrollStatus   `gorm:"index;size:20;not null;default:PENDING" json:"status"`
	PaidAt      *time.Time      `json:"paid_at"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func NetPay(basic, allowances, deductions decimal.Decimal) decimal.Decimal {
	return basic.Add(allowances).Sub(deductions)
}

type NewPayroll struct {
	BranchId    int             `json:"branch_id"`
	StaffName   string          `json:"staff_name" validate:"required,max=150"`
	Period      string          `json:"period" validate:"required"`
	BasicSalary decimal.Decimal `json:"basic_salary"`
	Allowances  decimal.Decimal `json:"allowances"`
	Deductions  decimal.Decimal `json:"deductions"`
}

func (input *NewPayroll) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	fields := map[string]string{}
	if !periodPattern.MatchString(input.Period) {
		fields["period"] = "YYYY-MM"
	}
	if !input.BasicSalary.IsPositive() {
		fields["basic_salary"] = "gt"
	}
	if input.Allowances.IsNegative() {
		fields["allowances"] = "gte"
	}
	if input.Deductions.IsNegative() {
		fields["deductions"] = "gte"
	}
	if len(fields) == 0 && NetPay(input.BasicSalary, input.Allowances, input.Deductions).IsNegative() {
		fields["deductions"] = "exceeds pay"
	}
	if len(fields) > 0 {
		return &utils.ValidationError{Fields: fields, Msg: "invalid payroll"}
	}
	return nil
}

func CreatePayroll(ctx context.Context, input *NewPayroll) (*Payroll, error) {
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
	payroll := Payroll{
		BranchId:    branchId,
		StaffName:   strings.TrimSpace(input.StaffName),
		Period:      input.Period,
		BasicSalary: input.BasicSalary,
		Allowances:  input.Allowances,
		Deductions:  input.Deductions,
		NetPay:      NetPay(input.BasicSalary, input.Allowances, input.Deductions),
		Status:      PayrollStatusPending,
	}
	if err := g.Insert(ctx, &payroll); err != nil {
		return nil, err
	}
	return &payroll, nil
}

func UpdatePayroll(ctx context.Context, id int, input *NewPayroll) (*Payroll, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	existing, err := GetPayroll(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status == PayrollStatusPaid {
		return nil, utils.NewValidationError("paid payroll cannot be edited")
	}
	return updateResource[Payroll](ctx, id, map[string]any{
		"staff_name":   strings.TrimSpace(input.StaffName),
		"period":       input.Period,
		"basic_salary": input.BasicSalary,
		"allowances":   input.Allowances,
		"deductions":   input.Deductions,
		"net_pay":      NetPay(input.BasicSalary, input.Allowances, input.Deductions),
	})
}

func PayPayroll(ctx context.Context, id int) (*Payroll, error) {
	existing, err := GetPayroll(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status == PayrollStatusPaid {
		return nil, utils.NewValidationError("payroll is already paid")
	}
	g, err := records()
	if err != nil {
		return nil, err
	}
	paid, err := g.UpdateWhere(ctx, gateway.From(&Payroll{}).Eq("id", id).Where("status", gateway.OpNeq, PayrollStatusPaid),
		map[string]any{"status": PayrollStatusPaid, "paid_at": time.Now().UTC()})
	if err != nil {
		return nil, err
	}
	if paid == 0 {
		return nil, utils.NewValidationError("payroll is already paid")
	}
	return GetPayroll(ctx, id)
}

func DeletePayroll(ctx context.Context, id int) (*Payroll, error) {
	return DeleteResource[Payroll](ctx, id)
}

func GetPayroll(ctx context.Context, id int) (*Payroll, error) {
	return GetResource[Payroll](ctx, id)
}

func PayrollsQuery(params ListParams) gateway.Query {
	params = params.normalized()
	q := gateway.From(&Payroll{}).Search(params.Search, "staff_name", "period").OrderBy("period", true).OrderBy("staff_name", false)
	if params.Status != "" {
		q = q.Eq("status", params.Status)
	}
	if params.BranchId > 0 {
		q = q.Eq("branch_id", params.BranchId)
	}
	return q
}

func ListPayrolls(ctx context.Context, params ListParams) (*ListResult[Payroll], error) {
	return ListResources[Payroll](ctx, PayrollsQuery(params), params)
}
