// Package gateway is the single path through which records and blobs are read and written.
// Every call runs under its own deadline derived from the caller's context.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrDuplicate          = errors.New("duplicate record")
	ErrReferenced         = errors.New("record is referenced by other records")
	ErrTimeout            = errors.New("remote call timed out")
	ErrInvalidColumn      = errors.New("invalid column")
	ErrStorageUnavailable = errors.New("blob storage is not configured")
)

type Records interface {
	Select(ctx context.Context, q Query, dest any) error
	First(ctx context.Context, q Query, dest any) error
	Count(ctx context.Context, q Query) (int64, error)
	Sum(ctx context.Context, q Query, column string) (decimal.Decimal, error)
	Insert(ctx context.Context, value any) error
	Update(ctx context.Context, model any, id int, values map[string]any) error
	// UpdateWhere writes values to every row q matches and reports how many changed.
	UpdateWhere(ctx context.Context, q Query, values map[string]any) (int64, error)
	Delete(ctx context.Context, model any, id int) error
	Transaction(ctx context.Context, fn func(tx Records) error) error
}

type Blobs interface {
	Upload(ctx context.Context, objectKey string, data []byte, contentType string) error
	Download(ctx context.Context, objectKey string) ([]byte, error)
	PublicURL(objectKey string) string
}

type Gateway interface {
	Records
	Blobs
}

// Remote implements Gateway on gorm and a Blobs backend.
type Remote struct {
	db      *gorm.DB
	blobs   Blobs
	timeout time.Duration
}

func New(db *gorm.DB, blobs Blobs, timeout time.Duration) *Remote {
	return &Remote{db: db, blobs: blobs, timeout: timeout}
}

func (r *Remote) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Remote) Select(ctx context.Context, q Query, dest any) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	tx, err := r.scoped(ctx, q)
	if err != nil {
		return err
	}
	return mapError(ctx, tx.Find(dest).Error)
}

func (r *Remote) First(ctx context.Context, q Query, dest any) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	tx, err := r.scoped(ctx, q.Take(1))
	if err != nil {
		return err
	}
	return mapError(ctx, tx.Take(dest).Error)
}

func (r *Remote) Count(ctx context.Context, q Query) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	q.Orders, q.Limit, q.Offset, q.Preload = nil, 0, 0, nil
	tx, err := r.scoped(ctx, q)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := tx.Count(&count).Error; err != nil {
		return 0, mapError(ctx, err)
	}
	return count, nil
}

func (r *Remote) Sum(ctx context.Context, q Query, column string) (decimal.Decimal, error) {
	if err := validateColumn(column); err != nil {
		return decimal.Zero, err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	q.Orders, q.Limit, q.Offset, q.Preload = nil, 0, 0, nil
	tx, err := r.scoped(ctx, q)
	if err != nil {
		return decimal.Zero, err
	}
	var sum decimal.Decimal
	if err := tx.Select(fmt.Sprintf("COALESCE(SUM(%s), 0)", column)).Row().Scan(&sum); err != nil {
		return decimal.Zero, mapError(ctx, err)
	}
	return sum, nil
}

func (r *Remote) Insert(ctx context.Context, value any) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return mapError(ctx, r.db.WithContext(ctx).Create(value).Error)
}

func (r *Remote) Update(ctx context.Context, model any, id int, values map[string]any) error {
	for column := range values {
		if err := validateColumn(column); err != nil {
			return err
		}
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return mapError(ctx, r.db.WithContext(ctx).Model(model).Where("id = ?", id).Updates(values).Error)
}

func (r *Remote) UpdateWhere(ctx context.Context, q Query, values map[string]any) (int64, error) {
	if len(q.Filters) == 0 {
		return 0, fmt.Errorf("%w: conditional update needs at least one filter", ErrInvalidColumn)
	}
	for column := range values {
		if err := validateColumn(column); err != nil {
			return 0, err
		}
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	q.Orders, q.Limit, q.Offset, q.Preload = nil, 0, 0, nil
	tx, err := r.scoped(ctx, q)
	if err != nil {
		return 0, err
	}
	result := tx.Updates(values)
	if result.Error != nil {
		return 0, mapError(ctx, result.Error)
	}
	return result.RowsAffected, nil
}

func (r *Remote) Delete(ctx context.Context, model any, id int) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	result := r.db.WithContext(ctx).Delete(model, id)
	if result.Error != nil {
		return mapError(ctx, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Transaction runs fn against a Records bound to one database transaction.
// The whole transaction shares a single deadline.
func (r *Remote) Transaction(ctx context.Context, fn func(tx Records) error) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Remote{db: tx, blobs: r.blobs})
	})
}

func (r *Remote) Upload(ctx context.Context, objectKey string, data []byte, contentType string) error {
	if r.blobs == nil {
		return ErrStorageUnavailable
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return mapError(ctx, r.blobs.Upload(ctx, objectKey, data, contentType))
}

func (r *Remote) Download(ctx context.Context, objectKey string) ([]byte, error) {
	if r.blobs == nil {
		return nil, ErrStorageUnavailable
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	data, err := r.blobs.Download(ctx, objectKey)
	return data, mapError(ctx, err)
}

func (r *Remote) PublicURL(objectKey string) string {
	if r.blobs == nil {
		return objectKey
	}
	return r.blobs.PublicURL(objectKey)
}

func (r *Remote) scoped(ctx context.Context, q Query) (*gorm.DB, error) {
	tx := r.db.WithContext(ctx)
	if q.Model != nil {
		tx = tx.Model(q.Model)
	}
	for _, f := range q.Filters {
		sql, args, err := filterSQL(f)
		if err != nil {
			return nil, err
		}
		tx = tx.Where(sql, args...)
	}
	for _, o := range q.Orders {
		if len(o.FirstOf) > 0 {
			sql, err := coalesceSQL(o)
			if err != nil {
				return nil, err
			}
			tx = tx.Order(sql)
			continue
		}
		if err := validateColumn(o.Column); err != nil {
			return nil, err
		}
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Column}, Desc: o.Desc})
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	for _, p := range q.Preload {
		tx = tx.Preload(p)
	}
	return tx, nil
}

func filterSQL(f Filter) (string, []any, error) {
	if len(f.AnyOf) > 0 {
		parts := make([]string, 0, len(f.AnyOf))
		args := make([]any, 0, len(f.AnyOf))
		for _, column := range f.AnyOf {
			if err := validateColumn(column); err != nil {
				return "", nil, err
			}
			parts = append(parts, column+" LIKE ?")
			args = append(args, likePattern(f.Value))
		}
		return "(" + strings.Join(parts, " OR ") + ")", args, nil
	}

	if err := validateColumn(f.Column); err != nil {
		return "", nil, err
	}
	switch f.Op {
	case OpIsNull, OpNotNull:
		return fmt.Sprintf("%s %s", f.Column, f.Op), nil, nil
	case OpIn:
		return fmt.Sprintf("%s IN ?", f.Column), []any{f.Value}, nil
	case OpLike:
		return fmt.Sprintf("%s LIKE ?", f.Column), []any{likePattern(f.Value)}, nil
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
		return fmt.Sprintf("%s %s ?", f.Column, f.Op), []any{f.Value}, nil
	default:
		return "", nil, fmt.Errorf("unsupported operator %q", f.Op)
	}
}

func coalesceSQL(o Order) (string, error) {
	for _, column := range o.FirstOf {
		if err := validateColumn(column); err != nil {
			return "", err
		}
	}
	sql := "COALESCE(" + strings.Join(o.FirstOf, ", ") + ")"
	if o.Desc {
		sql += " DESC"
	}
	return sql, nil
}

func likePattern(v any) string {
	s := fmt.Sprint(v)
	s = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
	return "%" + s + "%"
}

func mapError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1062:
			return fmt.Errorf("%w: %s", ErrDuplicate, mysqlErr.Message)
		case 1451:
			return fmt.Errorf("%w: %s", ErrReferenced, mysqlErr.Message)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
