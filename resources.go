package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/DataGeek404/micro-finance-app-sub001/middlewares"
	"github.com/DataGeek404/micro-finance-app-sub001/models"
	"github.com/DataGeek404/micro-finance-app-sub001/notify"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/gin-gonic/gin"
)

// resource bundles the CRUD functions of one screen.
type resource[In any, T any] struct {
	name   string
	list   func(ctx context.Context, params models.ListParams) (*models.ListResult[T], error)
	get    func(ctx context.Context, id int) (*T, error)
	create func(ctx context.Context, input *In) (*T, error)
	update func(ctx context.Context, id int, input *In) (*T, error)
	delete func(ctx context.Context, id int) (*T, error)
	// attach fills display-only relations on list and get responses
	attach func(ctx context.Context, items []*T) error
}

func idParam(c *gin.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, &utils.ValidationError{Fields: map[string]string{"id": "gt"}, Msg: "id must be a positive number"}
	}
	return id, nil
}

func (r resource[In, T]) title(verb string) string {
	return verb + " " + r.name + " failed"
}

func (r resource[In, T]) listHandler(c *gin.Context) {
	var params models.ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondError(c, r.title("Loading"), utils.NewValidationError("invalid filters: "+err.Error()))
		return
	}
	result, err := r.list(c.Request.Context(), params)
	if err != nil {
		respondError(c, r.title("Loading"), err)
		return
	}
	if r.attach != nil {
		if err := r.attach(c.Request.Context(), result.Items); err != nil {
			respondError(c, r.title("Loading"), err)
			return
		}
	}
	respondOK(c, result, nil)
}

func (r resource[In, T]) getHandler(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		respondError(c, r.title("Loading"), err)
		return
	}
	item, err := r.get(c.Request.Context(), id)
	if err != nil {
		respondError(c, r.title("Loading"), err)
		return
	}
	if r.attach != nil {
		if err := r.attach(c.Request.Context(), []*T{item}); err != nil {
			respondError(c, r.title("Loading"), err)
			return
		}
	}
	respondOK(c, item, nil)
}

func (r resource[In, T]) createHandler(c *gin.Context) {
	input := new(In)
	if err := c.ShouldBindJSON(input); err != nil {
		respondError(c, r.title("Saving"), utils.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	item, err := r.create(c.Request.Context(), input)
	if err != nil {
		respondError(c, r.title("Saving"), err)
		return
	}
	respondCreated(c, item, notify.Success(capitalize(r.name)+" created", "the "+r.name+" was saved"))
}

func (r resource[In, T]) updateHandler(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		respondError(c, r.title("Saving"), err)
		return
	}
	input := new(In)
	if err := c.ShouldBindJSON(input); err != nil {
		respondError(c, r.title("Saving"), utils.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	item, err := r.update(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, r.title("Saving"), err)
		return
	}
	respondOK(c, item, notify.Success(capitalize(r.name)+" updated", "the "+r.name+" was saved"))
}

func (r resource[In, T]) deleteHandler(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		respondError(c, r.title("Deleting"), err)
		return
	}
	item, err := r.delete(c.Request.Context(), id)
	if err != nil {
		respondError(c, r.title("Deleting"), err)
		return
	}
	respondOK(c, item, notify.Success(capitalize(r.name)+" deleted", "the "+r.name+" was removed"))
}

// mount registers the five routes; mutate guards the write routes.
func (r resource[In, T]) mount(g *gin.RouterGroup, path string, mutate ...gin.HandlerFunc) *gin.RouterGroup {
	group := g.Group(path)
	group.GET("", r.listHandler)
	group.GET("/:id", r.getHandler)
	group.POST("", append(append([]gin.HandlerFunc{}, mutate...), r.createHandler)...)
	group.PUT("/:id", append(append([]gin.HandlerFunc{}, mutate...), r.updateHandler)...)
	group.DELETE("/:id", append(append([]gin.HandlerFunc{}, mutate...), r.deleteHandler)...)
	return group
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var (
	clientResource = resource[models.NewClient, models.Client]{
		name:   "client",
		list:   models.ListClients,
		get:    models.GetClient,
		create: models.CreateClient,
		update: models.UpdateClient,
		delete: models.DeleteClient,
		attach: middlewares.AttachClientBranches,
	}
	branchResource = resource[models.NewBranch, models.Branch]{
		name:   "branch",
		list:   models.ListBranches,
		get:    models.GetBranch,
		create: models.CreateBranch,
		update: models.UpdateBranch,
		delete: models.DeleteBranch,
	}
	loanResource = resource[models.NewLoan, models.Loan]{
		name:   "loan",
		list:   models.ListLoans,
		get:    models.GetLoan,
		create: models.CreateLoan,
		update: models.UpdateLoan,
		delete: models.DeleteLoan,
		attach: middlewares.AttachLoanClients,
	}
	roleResource = resource[models.NewRole, models.Role]{
		name:   "role",
		list:   models.ListRoles,
		get:    models.GetRole,
		create: models.CreateRole,
		update: models.UpdateRole,
		delete: models.DeleteRole,
	}
	expenseResource = resource[models.NewExpense, models.Expense]{
		name:   "expense",
		list:   models.ListExpenses,
		get:    models.GetExpense,
		create: models.CreateExpense,
		update: models.UpdateExpense,
		delete: models.DeleteExpense,
	}
	payrollResource = resource[models.NewPayroll, models.Payroll]{
		name:   "payroll",
		list:   models.ListPayrolls,
		get:    models.GetPayroll,
		create: models.CreatePayroll,
		update: models.UpdatePayroll,
		delete: models.DeletePayroll,
	}
)

var loanActions = map[string]models.LoanStatus{
	"approve":  models.LoanStatusApproved,
	"reject":   models.LoanStatusRejected,
	"disburse": models.LoanStatusDisbursed,
	"activate": models.LoanStatusActive,
	"complete": models.LoanStatusCompleted,
	"default":  models.LoanStatusDefaulted,
}

func loanActionHandler(action string, next models.LoanStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			respondError(c, "Loan "+action+" failed", err)
			return
		}
		loan, err := models.TransitionLoan(c.Request.Context(), id, next)
		if err != nil {
			respondError(c, "Loan "+action+" failed", err)
			return
		}
		respondOK(c, loan, notify.Success("Loan "+strings.ToLower(string(next)), "loan #"+strconv.Itoa(loan.ID)+" is now "+strings.ToLower(string(next))))
	}
}

func loanRepaymentsHandler(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		respondError(c, "Loading repayments failed", err)
		return
	}
	var params models.ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondError(c, "Loading repayments failed", utils.NewValidationError("invalid filters: "+err.Error()))
		return
	}
	params.LoanId = id
	result, err := models.ListRepayments(c.Request.Context(), params)
	if err != nil {
		respondError(c, "Loading repayments failed", err)
		return
	}
	respondOK(c, result, nil)
}

func listRepaymentsHandler(c *gin.Context) {
	var params models.ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondError(c, "Loading repayments failed", utils.NewValidationError("invalid filters: "+err.Error()))
		return
	}
	result, err := models.ListRepayments(c.Request.Context(), params)
	if err != nil {
		respondError(c, "Loading repayments failed", err)
		return
	}
	respondOK(c, result, nil)
}

func payRepaymentHandler(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		respondError(c, "Payment failed", err)
		return
	}
	var input models.PayRepaymentInput
	// an empty body means "paid now"
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, "Payment failed", utils.NewValidationError("invalid request body: "+err.Error()))
			return
		}
	}
	repayment, err := models.PayRepayment(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, "Payment failed", err)
		return
	}
	respondOK(c, repayment, notify.Success("Repayment received", "installment #"+strconv.Itoa(repayment.ID)+" is paid"))
}

func payPayrollHandler(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		respondError(c, "Payroll payment failed", err)
		return
	}
	payroll, err := models.PayPayroll(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Payroll payment failed", err)
		return
	}
	respondOK(c, payroll, notify.Success("Payroll paid", "payroll #"+strconv.Itoa(payroll.ID)+" is paid"))
}
