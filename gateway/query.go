package gateway

import (
	"fmt"
	"regexp"
)

type Op string

const (
	OpEq      Op = "="
	OpNeq     Op = "<>"
	OpGt      Op = ">"
	OpGte     Op = ">="
	OpLt      Op = "<"
	OpLte     Op = "<="
	OpIn      Op = "IN"
	OpLike    Op = "LIKE"
	OpIsNull  Op = "IS NULL"
	OpNotNull Op = "IS NOT NULL"
)

var columnPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

// Filter is a single column predicate. Columns listed in AnyOf are OR-ed with the same op/value.
type Filter struct {
	Column string
	Op     Op
	Value  any
	AnyOf  []string
}

// Order sorts by Column, or by the first non-null of FirstOf when that is set.
type Order struct {
	Column  string
	FirstOf []string
	Desc    bool
}

// Query describes a select against one table. Model is a pointer to the gorm model.
type Query struct {
	Model   any
	Filters []Filter
	Orders  []Order
	Limit   int
	Offset  int
	Preload []string
}

func From(model any) Query {
	return Query{Model: model}
}

func (q Query) Where(column string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Column: column, Op: op, Value: value})
	return q
}

func (q Query) Eq(column string, value any) Query {
	return q.Where(column, OpEq, value)
}

func (q Query) In(column string, values any) Query {
	return q.Where(column, OpIn, values)
}

// Search matches term against any of the columns with LIKE %term%.
func (q Query) Search(term string, columns ...string) Query {
	if term == "" || len(columns) == 0 {
		return q
	}
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Op: OpLike, Value: term, AnyOf: columns})
	return q
}

func (q Query) OrderBy(column string, desc bool) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Column: column, Desc: desc})
	return q
}

// OrderByFirstOf sorts by COALESCE(columns...), the first column that is not null.
func (q Query) OrderByFirstOf(desc bool, columns ...string) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{FirstOf: columns, Desc: desc})
	return q
}

func (q Query) Take(limit int) Query {
	q.Limit = limit
	return q
}

func (q Query) Skip(offset int) Query {
	q.Offset = offset
	return q
}

func (q Query) With(associations ...string) Query {
	q.Preload = append(append([]string(nil), q.Preload...), associations...)
	return q
}

// Page applies 1-based page numbering.
func (q Query) Page(page, size int) Query {
	if size <= 0 {
		return q
	}
	if page < 1 {
		page = 1
	}
	return q.Take(size).Skip((page - 1) * size)
}

func validateColumn(column string) error {
	if !columnPattern.MatchString(column) {
		return fmt.Errorf("%w: %q", ErrInvalidColumn, column)
	}
	return nil
}
