package models

import (
	"github.com/DataGeek404/micro-finance-app-sub001/config"
)

func MigrateTable() error {
	db := config.GetDB()

	return db.AutoMigrate(
		&Branch{}, &Role{},
		&Client{}, &Loan{}, &LoanRepayment{},
		&Expense{}, &Payroll{},
	)
}
