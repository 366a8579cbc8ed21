package models

import (
	"context"
	"strings"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/shopspring/decimal"
)

type Client struct {
	ID            int             `gorm:"primary_key" json:"id"`
	FirstName     string          `gorm:"size:100;not null" json:"first_name"`
	LastName      string          `gorm:"size:100;not null" json:"last_name"`
	Email         string          `gorm:"index;size:150" json:"email"`
	Phone         string          `gorm:"index;size:20" json:"phone"`
	NationalId    string          `gorm:"index;size:50" json:"national_id"`
	Address       string          `gorm:"type:text" json:"address"`
	Occupation    string          `gorm:"size:100" json:"occupation"`
	MonthlyIncome decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"monthly_income"`
	Status        ClientStatus    `gorm:"index;size:20;not null;default:PENDING" json:"status"`
	BranchId      int             `gorm:"index;not null" json:"branch_id"`
	PhotoUrl      string          `gorm:"size:500" json:"photo_url"`
	CreatedAt     time.Time       `gorm:"index;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Branch *Branch `gorm:"-" json:"branch,omitempty"`
}

func (c Client) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type NewClient struct {
	FirstName     string          `json:"first_name" validate:"required,max=100"`
	LastName      string          `json:"last_name" validate:"required,max=100"`
	Email         string          `json:"email" validate:"omitempty,email,max=150"`
	Phone         string          `json:"phone" validate:"omitempty,phone"`
	NationalId    string          `json:"national_id" validate:"max=50"`
	Address       string          `json:"address"`
	Occupation    string          `json:"occupation" validate:"max=100"`
	MonthlyIncome decimal.Decimal `json:"monthly_income"`
	Status        ClientStatus    `json:"status"`
	BranchId      int             `json:"branch_id"`
	PhotoUrl      string          `json:"photo_url" validate:"omitempty,url"`
}

func (input *NewClient) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.MonthlyIncome.IsNegative() {
		return &utils.ValidationError{Fields: map[string]string{"monthly_income": "gte"}, Msg: "monthly_income cannot be negative"}
	}
	if input.Status == "" {
		input.Status = ClientStatusPending
	}
	phone, err := normalizePhone("phone", input.Phone)
	if err != nil {
		return err
	}
	input.Phone = phone
	return nil
}

func CreateClient(ctx context.Context, input *NewClient) (*Client, error) {
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

	client := Client{
		FirstName:     strings.TrimSpace(input.FirstName),
		LastName:      strings.TrimSpace(input.LastName),
		Email:         strings.TrimSpace(input.Email),
		Phone:         input.Phone,
		NationalId:    strings.TrimSpace(input.NationalId),
		Address:       input.Address,
		Occupation:    input.Occupation,
		MonthlyIncome: input.MonthlyIncome,
		Status:        input.Status,
		BranchId:      branchId,
		PhotoUrl:      input.PhotoUrl,
	}
	if err := g.Insert(ctx, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

func UpdateClient(ctx context.Context, id int, input *NewClient) (*Client, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	values := map[string]any{
		"first_name":     strings.TrimSpace(input.FirstName),
		"last_name":      strings.TrimSpace(input.LastName),
		"email":          strings.TrimSpace(input.Email),
		"phone":          input.Phone,
		"national_id":    strings.TrimSpace(input.NationalId),
		"address":        input.Address,
		"occupation":     input.Occupation,
		"monthly_income": input.MonthlyIncome,
		"status":         input.Status,
		"photo_url":      input.PhotoUrl,
	}
	return updateResource[Client](ctx, id, values)
}

func DeleteClient(ctx context.Context, id int) (*Client, error) {
	return DeleteResource[Client](ctx, id)
}

func GetClient(ctx context.Context, id int) (*Client, error) {
	return GetResource[Client](ctx, id)
}

func ClientsQuery(params ListParams) gateway.Query {
	params = params.normalized()
	q := gateway.From(&Client{}).
		Search(params.Search, "first_name", "last_name", "phone", "national_id").
		OrderBy("created_at", true)
	if params.Status != "" {
		q = q.Eq("status", params.Status)
	}
	if params.BranchId > 0 {
		q = q.Eq("branch_id", params.BranchId)
	}
	return q
}

func ListClients(ctx context.Context, params ListParams) (*ListResult[Client], error) {
	return ListResources[Client](ctx, ClientsQuery(params), params)
}
