package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/DataGeek404/micro-finance-app-sub001/config"
	"github.com/DataGeek404/micro-finance-app-sub001/models"
	"github.com/sirupsen/logrus"
)

// migrate runs AutoMigrate as a standalone job.
//
// Deployments that set SKIP_MIGRATIONS=true on the API run this once per release instead,
// so a slow ALTER never holds up the readiness gate.
func main() {
	dryRun := flag.Bool("dry-run", false, "If true, only check that the database is reachable")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	if *dryRun {
		fmt.Println("[dry-run] database reachable; no tables changed")
		return
	}

	if err := models.MigrateTable(); err != nil {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Error(err.Error())
		os.Exit(1)
	}
	logger.WithFields(logrus.Fields{"field": "migrations"}).Info("migrations applied")
}
