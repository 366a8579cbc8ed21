package models

import (
	"context"
	"strings"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
)

type Branch struct {
	ID        int          `gorm:"primary_key" json:"id"`
	Name      string       `gorm:"index;size:100;not null" json:"name"`
	Code      string       `gorm:"uniqueIndex;size:20;not null" json:"code"`
	Phone     string       `gorm:"size:20" json:"phone"`
	Email     string       `gorm:"size:150" json:"email"`
	Address   string       `gorm:"type:text" json:"address"`
	ManagerId string       `gorm:"index;size:64" json:"manager_id"`
	Status    BranchStatus `gorm:"index;size:20;not null;default:ACTIVE" json:"status"`
	CreatedAt time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBranch struct {
	Name      string       `json:"name" validate:"required,max=100"`
	Code      string       `json:"code" validate:"required,max=20"`
	Phone     string       `json:"phone" validate:"omitempty,phone"`
	Email     string       `json:"email" validate:"omitempty,email"`
	Address   string       `json:"address"`
	ManagerId string       `json:"manager_id" validate:"max=64"`
	Status    BranchStatus `json:"status"`
}

// validate input for both create & update
func (input *NewBranch) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	input.Code = strings.ToUpper(strings.TrimSpace(input.Code))
	if input.Status == "" {
		input.Status = BranchStatusActive
	}
	phone, err := normalizePhone("phone", input.Phone)
	if err != nil {
		return err
	}
	input.Phone = phone
	return nil
}

func CreateBranch(ctx context.Context, input *NewBranch) (*Branch, error) {
	g, err := records()
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	branch := Branch{
		Name:      strings.TrimSpace(input.Name),
		Code:      input.Code,
		Phone:     input.Phone,
		Email:     input.Email,
		Address:   input.Address,
		ManagerId: input.ManagerId,
		Status:    input.Status,
	}
	if err := g.Insert(ctx, &branch); err != nil {
		return nil, err
	}
	return &branch, nil
}

func UpdateBranch(ctx context.Context, id int, input *NewBranch) (*Branch, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	return updateResource[Branch](ctx, id, map[string]any{
		"name":       strings.TrimSpace(input.Name),
		"code":       input.Code,
		"phone":      input.Phone,
		"email":      input.Email,
		"address":    input.Address,
		"manager_id": input.ManagerId,
		"status":     input.Status,
	})
}

func DeleteBranch(ctx context.Context, id int) (*Branch, error) {
	return DeleteResource[Branch](ctx, id)
}

func GetBranch(ctx context.Context, id int) (*Branch, error) {
	return GetResource[Branch](ctx, id)
}

func BranchesQuery(params ListParams) gateway.Query {
	params = params.normalized()
	q := gateway.From(&Branch{}).Search(params.Search, "name", "code").OrderBy("name", false)
	if params.Status != "" {
		q = q.Eq("status", params.Status)
	}
	return q
}

func ListBranches(ctx context.Context, params ListParams) (*ListResult[Branch], error) {
	return ListResources[Branch](ctx, BranchesQuery(params), params)
}
