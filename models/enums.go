package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

type ClientStatus string

const (
	ClientStatusActive      ClientStatus = "ACTIVE"
	ClientStatusInactive    ClientStatus = "INACTIVE"
	ClientStatusBlacklisted ClientStatus = "BLACKLISTED"
	ClientStatusPending     ClientStatus = "PENDING"
)

var clientStatuses = []ClientStatus{ClientStatusActive, ClientStatusInactive, ClientStatusBlacklisted, ClientStatusPending}

func (s ClientStatus) IsValid() bool {
	return slices.Contains(clientStatuses, s)
}

func (s *ClientStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, s, "client status")
}

type LoanStatus string

const (
	LoanStatusPending   LoanStatus = "PENDING"
	LoanStatusApproved  LoanStatus = "APPROVED"
	LoanStatusDisbursed LoanStatus = "DISBURSED"
	LoanStatusActive    LoanStatus = "ACTIVE"
	LoanStatusCompleted LoanStatus = "COMPLETED"
	LoanStatusDefaulted LoanStatus = "DEFAULTED"
	LoanStatusRejected  LoanStatus = "REJECTED"
)

var loanStatuses = []LoanStatus{
	LoanStatusPending, LoanStatusApproved, LoanStatusDisbursed, LoanStatusActive,
	LoanStatusCompleted, LoanStatusDefaulted, LoanStatusRejected,
}

func (s LoanStatus) IsValid() bool {
	return slices.Contains(loanStatuses, s)
}

func (s *LoanStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, s, "loan status")
}

// OutstandingLoanStatuses are the statuses counted as money currently out with clients.
var OutstandingLoanStatuses = []LoanStatus{LoanStatusActive, LoanStatusDisbursed}

type BranchStatus string

const (
	BranchStatusActive   BranchStatus = "ACTIVE"
	BranchStatusInactive BranchStatus = "INACTIVE"
	BranchStatusPending  BranchStatus = "PENDING"
)

var branchStatuses = []BranchStatus{BranchStatusActive, BranchStatusInactive, BranchStatusPending}

func (s BranchStatus) IsValid() bool {
	return slices.Contains(branchStatuses, s)
}

func (s *BranchStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, s, "branch status")
}

type PayrollStatus string

const (
	PayrollStatusPending PayrollStatus = "PENDING"
	PayrollStatusPaid    PayrollStatus = "PAID"
)

var payrollStatuses = []PayrollStatus{PayrollStatusPending, PayrollStatusPaid}

func (s PayrollStatus) IsValid() bool {
	return slices.Contains(payrollStatuses, s)
}

func (s *PayrollStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, s, "payroll status")
}

// accepts any casing on input, stores upper case
func unmarshalEnum[T interface {
	~string
	IsValid() bool
}](b []byte, dst *T, name string) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("%s must be string", name)
	}
	v := T(strings.ToUpper(strings.TrimSpace(str)))
	if !v.IsValid() {
		return fmt.Errorf("invalid %s %q", name, str)
	}
	*dst = v
	return nil
}
