// seed-branch creates the head office branch on a fresh database.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-branch
//
// Rerunning is safe: an existing branch with the same code is left alone.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/DataGeek404/micro-finance-app-sub001/config"
	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/models"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
)

func main() {
	name := flag.String("name", "Head Office", "Branch name")
	code := flag.String("code", "HQ", "Unique branch code")
	phone := flag.String("phone", "", "Optional: branch phone number")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	settings := config.LoadSettings()
	models.SetGateway(gateway.New(db, gateway.NewMemoryBlobs(""), settings.GatewayTimeout))

	// no branch exists yet to scope by
	ctx := utils.SystemContext(context.Background(), "seed-branch")

	branch, err := models.CreateBranch(ctx, &models.NewBranch{
		Name:   *name,
		Code:   *code,
		Phone:  *phone,
		Status: models.BranchStatusActive,
	})
	switch {
	case errors.Is(err, gateway.ErrDuplicate):
		fmt.Printf("branch %s already exists\n", *code)
		return
	case err != nil:
		fmt.Fprintf(os.Stderr, "failed to create branch: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created branch #%d %s (%s)\n", branch.ID, branch.Name, branch.Code)
}
