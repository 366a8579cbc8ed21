package models

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedUpdate struct {
	model  any
	id     int
	values map[string]any
}

// fakeGateway serves one loan and one repayment and records every write. Reads never see
// earlier writes, so two callers can both observe the same starting state.
type fakeGateway struct {
	*gateway.MemoryBlobs
	loan       Loan
	repayment  LoanRepayment
	payroll    Payroll
	openCount  int64
	updates    []recordedUpdate
	inserted   []any
	failUpdate error
	// claimed holds rows whose conditional update already went through
	claimed map[string]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{MemoryBlobs: gateway.NewMemoryBlobs(""), claimed: map[string]bool{}}
}

func filterValue(q gateway.Query, column string) any {
	for _, f := range q.Filters {
		if f.Column == column {
			return f.Value
		}
	}
	return nil
}

func (f *fakeGateway) Select(ctx context.Context, q gateway.Query, dest any) error { return nil }

func (f *fakeGateway) First(ctx context.Context, q gateway.Query, dest any) error {
	switch d := dest.(type) {
	case *Loan:
		if f.loan.ID == 0 {
			return gateway.ErrNotFound
		}
		*d = f.loan
	case *LoanRepayment:
		if f.repayment.ID == 0 {
			return gateway.ErrNotFound
		}
		*d = f.repayment
	case *Payroll:
		if f.payroll.ID == 0 {
			return gateway.ErrNotFound
		}
		*d = f.payroll
	default:
		return fmt.Errorf("unexpected dest %T", dest)
	}
	return nil
}

func (f *fakeGateway) Count(ctx context.Context, q gateway.Query) (int64, error) {
	return f.openCount, nil
}

func (f *fakeGateway) Sum(ctx context.Context, q gateway.Query, column string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (f *fakeGateway) Insert(ctx context.Context, value any) error {
	f.inserted = append(f.inserted, value)
	return nil
}

func (f *fakeGateway) Update(ctx context.Context, model any, id int, values map[string]any) error {
	if f.failUpdate != nil {
		return f.failUpdate
	}
	f.updates = append(f.updates, recordedUpdate{model: model, id: id, values: values})
	return nil
}

// UpdateWhere changes a row once. A second write carrying the same precondition finds the
// row already moved on and changes nothing.
func (f *fakeGateway) UpdateWhere(ctx context.Context, q gateway.Query, values map[string]any) (int64, error) {
	if f.failUpdate != nil {
		return 0, f.failUpdate
	}
	id, _ := filterValue(q, "id").(int)
	key := fmt.Sprintf("%T/%d", q.Model, id)
	if f.claimed[key] {
		return 0, nil
	}
	f.claimed[key] = true
	f.updates = append(f.updates, recordedUpdate{model: q.Model, id: id, values: values})
	return 1, nil
}

func (f *fakeGateway) Delete(ctx context.Context, model any, id int) error { return nil }

func (f *fakeGateway) Transaction(ctx context.Context, fn func(tx gateway.Records) error) error {
	return fn(f)
}

// queryCapture remembers the last conditional update it forwards.
type queryCapture struct {
	*fakeGateway
	last *gateway.Query
}

func (c *queryCapture) UpdateWhere(ctx context.Context, q gateway.Query, values map[string]any) (int64, error) {
	*c.last = q
	return c.fakeGateway.UpdateWhere(ctx, q, values)
}

func useFakeGateway(t *testing.T, f *fakeGateway) {
	t.Helper()
	SetGateway(f)
	t.Cleanup(func() { SetGateway(nil) })
}

func TestLoanStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to LoanStatus
		ok       bool
	}{
		{LoanStatusPending, LoanStatusApproved, true},
		{LoanStatusPending, LoanStatusRejected, true},
		{LoanStatusApproved, LoanStatusDisbursed, true},
		{LoanStatusDisbursed, LoanStatusActive, true},
		{LoanStatusActive, LoanStatusCompleted, true},
		{LoanStatusActive, LoanStatusDefaulted, true},
		{LoanStatusPending, LoanStatusDisbursed, false},
		{LoanStatusRejected, LoanStatusApproved, false},
		{LoanStatusCompleted, LoanStatusActive, false},
		{LoanStatusDefaulted, LoanStatusCompleted, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestLoan_ProfitIsFlatPercentage(t *testing.T) {
	loan := Loan{Amount: decimal.NewFromInt(1000), InterestRate: decimal.NewFromInt(12)}
	assert.True(t, loan.Profit().Equal(decimal.NewFromInt(120)), "got %s", loan.Profit())
	assert.True(t, loan.TotalDue().Equal(decimal.NewFromInt(1120)))
}

func TestApplyTransition_DisbursementSetsTerm(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	loan := Loan{Status: LoanStatusApproved, TermMonths: 6}
	values, err := loan.applyTransition(LoanStatusDisbursed, now)
	require.NoError(t, err)

	assert.Equal(t, LoanStatusDisbursed, loan.Status)
	assert.Equal(t, now, *loan.DisbursedAt)
	assert.Equal(t, time.Date(2024, 7, 15, 9, 0, 0, 0, time.UTC), *loan.EndDate)
	assert.Equal(t, now, values["start_date"])
	assert.Equal(t, LoanStatusDisbursed, values["status"])

	_, err = loan.applyTransition(LoanStatusApproved, now)
	assert.ErrorIs(t, err, ErrInvalidLoanTransition)
}

func TestBuildRepaymentSchedule(t *testing.T) {
	start := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	loan := Loan{
		ID: 4, BranchId: 2, TermMonths: 12, StartDate: &start,
		Amount: decimal.NewFromInt(1000), InterestRate: decimal.NewFromInt(12),
	}
	schedule := BuildRepaymentSchedule(loan)
	require.Len(t, schedule, 12)

	total := decimal.Zero
	for i, r := range schedule {
		total = total.Add(r.Amount)
		assert.Equal(t, 4, r.LoanId)
		assert.Equal(t, 2, r.BranchId)
		assert.Equal(t, start.AddDate(0, i+1, 0), r.DueDate)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(1120)), "schedule total %s", total)
	assert.Equal(t, "93.33", schedule[0].Amount.StringFixed(2))
	assert.Equal(t, "93.37", schedule[11].Amount.StringFixed(2))

	assert.Nil(t, BuildRepaymentSchedule(Loan{TermMonths: 3}))
}

func TestTransitionLoan_DisburseWritesScheduleInTransaction(t *testing.T) {
	f := newFakeGateway()
	f.loan = Loan{ID: 9, BranchId: 1, Status: LoanStatusApproved, TermMonths: 3,
		Amount: decimal.NewFromInt(300), InterestRate: decimal.NewFromInt(10)}
	useFakeGateway(t, f)

	loan, err := TransitionLoan(context.Background(), 9, LoanStatusDisbursed)
	require.NoError(t, err)
	assert.Equal(t, LoanStatusDisbursed, loan.Status)
	require.NotNil(t, loan.DisbursedAt)

	require.Len(t, f.updates, 1)
	assert.Equal(t, 9, f.updates[0].id)
	require.Len(t, f.inserted, 1)
	schedule, ok := f.inserted[0].(*[]LoanRepayment)
	require.True(t, ok)
	assert.Len(t, *schedule, 3)
}

func TestTransitionLoan_OverlappingDisbursementsWriteOneSchedule(t *testing.T) {
	f := newFakeGateway()
	f.loan = Loan{ID: 9, BranchId: 1, Status: LoanStatusApproved, TermMonths: 3,
		Amount: decimal.NewFromInt(300), InterestRate: decimal.NewFromInt(10)}
	useFakeGateway(t, f)

	_, err1 := TransitionLoan(context.Background(), 9, LoanStatusDisbursed)
	_, err2 := TransitionLoan(context.Background(), 9, LoanStatusDisbursed)

	require.NoError(t, err1)
	assert.ErrorIs(t, err2, ErrInvalidLoanTransition)
	assert.Len(t, f.updates, 1)
	assert.Len(t, f.inserted, 1, "the losing request must not insert a second schedule")
}

func TestTransitionLoan_ConditionalOnCurrentStatus(t *testing.T) {
	f := newFakeGateway()
	f.loan = Loan{ID: 2, Status: LoanStatusPending}
	useFakeGateway(t, f)

	var seen gateway.Query
	g := &queryCapture{fakeGateway: f, last: &seen}
	SetGateway(g)

	_, err := TransitionLoan(context.Background(), 2, LoanStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, 2, filterValue(seen, "id"))
	assert.Equal(t, LoanStatusPending, filterValue(seen, "status"))
}

func TestTransitionLoan_IllegalStepWritesNothing(t *testing.T) {
	f := newFakeGateway()
	f.loan = Loan{ID: 3, Status: LoanStatusPending}
	useFakeGateway(t, f)

	_, err := TransitionLoan(context.Background(), 3, LoanStatusActive)
	assert.ErrorIs(t, err, ErrInvalidLoanTransition)
	assert.Empty(t, f.updates)

	f.loan = Loan{}
	_, err = TransitionLoan(context.Background(), 404, LoanStatusApproved)
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestPayRepayment_CompletesLoanOnLastInstallment(t *testing.T) {
	f := newFakeGateway()
	f.repayment = LoanRepayment{ID: 5, LoanId: 9, Amount: decimal.NewFromInt(100)}
	f.loan = Loan{ID: 9, Status: LoanStatusActive}
	useFakeGateway(t, f)

	repayment, err := PayRepayment(context.Background(), 5, nil)
	require.NoError(t, err)
	assert.True(t, repayment.IsPaid)
	require.NotNil(t, repayment.PaidDate)

	require.Len(t, f.updates, 2)
	assert.Equal(t, true, f.updates[0].values["is_paid"])
	assert.Equal(t, LoanStatusCompleted, f.updates[1].values["status"])
}

func TestPayRepayment_KeepsLoanOpenWhileInstallmentsRemain(t *testing.T) {
	f := newFakeGateway()
	f.repayment = LoanRepayment{ID: 5, LoanId: 9}
	f.loan = Loan{ID: 9, Status: LoanStatusActive}
	f.openCount = 2
	useFakeGateway(t, f)

	_, err := PayRepayment(context.Background(), 5, nil)
	require.NoError(t, err)
	assert.Len(t, f.updates, 1)
}

func TestPayRepayment_OverlappingPaymentsPayOnce(t *testing.T) {
	f := newFakeGateway()
	f.repayment = LoanRepayment{ID: 5, LoanId: 9, Amount: decimal.NewFromInt(100)}
	f.loan = Loan{ID: 9, Status: LoanStatusActive}
	f.openCount = 1
	useFakeGateway(t, f)

	_, err1 := PayRepayment(context.Background(), 5, nil)
	_, err2 := PayRepayment(context.Background(), 5, nil)

	require.NoError(t, err1)
	require.Error(t, err2)
	assert.True(t, utils.IsValidationError(err2))
	assert.Len(t, f.updates, 1)
}

func TestPayRepayment_Rejections(t *testing.T) {
	f := newFakeGateway()
	f.repayment = LoanRepayment{ID: 5, LoanId: 9, IsPaid: true}
	useFakeGateway(t, f)

	_, err := PayRepayment(context.Background(), 5, nil)
	assert.Error(t, err)

	f.repayment.IsPaid = false
	future := time.Now().Add(48 * time.Hour)
	_, err = PayRepayment(context.Background(), 5, &PayRepaymentInput{PaidDate: &future})
	assert.Error(t, err)

	f.failUpdate = errors.New("write failed")
	_, err = PayRepayment(context.Background(), 5, nil)
	assert.EqualError(t, err, "write failed")
}

func TestPayPayroll_PaysOnce(t *testing.T) {
	f := newFakeGateway()
	f.payroll = Payroll{ID: 4, Status: PayrollStatusPending}
	useFakeGateway(t, f)

	_, err := PayPayroll(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, f.updates, 1)
	assert.Equal(t, PayrollStatusPaid, f.updates[0].values["status"])

	_, err = PayPayroll(context.Background(), 4)
	assert.True(t, utils.IsValidationError(err))
	assert.Len(t, f.updates, 1)
}

func TestOperationsWithoutGateway(t *testing.T) {
	SetGateway(nil)
	_, err := GetLoan(context.Background(), 1)
	assert.ErrorIs(t, err, ErrGatewayNotConfigured)
}
