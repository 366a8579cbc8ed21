package models

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
)

var (
	gw   gateway.Gateway
	gwMu sync.RWMutex
)

// SetGateway installs the gateway used by every CRUD operation in this package.
func SetGateway(g gateway.Gateway) {
	gwMu.Lock()
	defer gwMu.Unlock()
	gw = g
}

func Gateway() gateway.Gateway {
	gwMu.RLock()
	defer gwMu.RUnlock()
	return gw
}

var ErrGatewayNotConfigured = errors.New("data gateway is not configured")

func records() (gateway.Gateway, error) {
	g := Gateway()
	if g == nil {
		return nil, ErrGatewayNotConfigured
	}
	return g, nil
}

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// ListParams are the list screen filters shared by every resource.
type ListParams struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Search   string `form:"search"`
	Status   string `form:"status"`
	BranchId int    `form:"branch_id"`
	ClientId int    `form:"client_id"`
	LoanId   int    `form:"loan_id"`
	IsPaid   *bool  `form:"is_paid"`
}

func (p ListParams) normalized() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = defaultPageSize
	}
	p.PageSize = min(p.PageSize, maxPageSize)
	p.Search = strings.TrimSpace(p.Search)
	p.Status = strings.ToUpper(strings.TrimSpace(p.Status))
	return p
}

type ListResult[T any] struct {
	Items    []*T  `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// resolveBranchId picks the branch a new record belongs to. Staff scoped to a branch
// always write into their own branch; admins must name one.
func resolveBranchId(ctx context.Context, requested int) (int, error) {
	isAdmin, _ := utils.GetIsAdminFromContext(ctx)
	if branchId, ok := utils.GetBranchIdFromContext(ctx); ok && branchId > 0 && !isAdmin {
		return branchId, nil
	}
	if requested <= 0 {
		return 0, &utils.ValidationError{Fields: map[string]string{"branch_id": "required"}, Msg: "branch_id is required"}
	}
	return requested, nil
}

func normalizePhone(field, phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}
	normalized, err := utils.NormalizePhoneNumber(phone, utils.PhoneRegion())
	if err != nil {
		return "", &utils.ValidationError{Fields: map[string]string{field: "phone"}, Msg: "invalid " + field}
	}
	return normalized, nil
}
