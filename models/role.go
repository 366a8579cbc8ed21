package models

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
)

type Role struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Name        string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Description string    `gorm:"size:255" json:"description"`
	Permissions string    `gorm:"type:text" json:"permissions"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewRole struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description string   `json:"description" validate:"max=255"`
	Permissions []string `json:"permissions" validate:"dive,required"`
}

// permissions are stored comma separated, lower case, e.g. "loans:read,loans:approve"
func extractPermissions(s string) []string {
	var result []string
	for _, p := range strings.Split(strings.ToLower(s), ",") {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

func joinPermissions(permissions []string) string {
	normalized := make([]string, 0, len(permissions))
	for _, p := range permissions {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(p)))
	}
	normalized = utils.UniqueSlice(normalized)
	slices.Sort(normalized)
	return strings.Join(normalized, ",")
}

func (r Role) PermissionList() []string {
	return extractPermissions(r.Permissions)
}

func (r Role) HasPermission(permission string) bool {
	return slices.Contains(r.PermissionList(), strings.ToLower(permission))
}

func CreateRole(ctx context.Context, input *NewRole) (*Role, error) {
	g, err := records()
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	role := Role{
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Permissions: joinPermissions(input.Permissions),
	}
	if err := g.Insert(ctx, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

func UpdateRole(ctx context.Context, id int, input *NewRole) (*Role, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	return updateResource[Role](ctx, id, map[string]any{
		"name":        strings.TrimSpace(input.Name),
		"description": input.Description,
		"permissions": joinPermissions(input.Permissions),
	})
}

func DeleteRole(ctx context.Context, id int) (*Role, error) {
	return DeleteResource[Role](ctx, id)
}

func GetRole(ctx context.Context, id int) (*Role, error) {
	return GetResource[Role](ctx, id)
}

func ListRoles(ctx context.Context, params ListParams) (*ListResult[Role], error) {
	params = params.normalized()
	q := gateway.From(&Role{}).Search(params.Search, "name").OrderBy("name", false)
	return ListResources[Role](ctx, q, params)
}
