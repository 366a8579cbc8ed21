package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/DataGeek404/micro-finance-app-sub001/auth"
	"github.com/DataGeek404/micro-finance-app-sub001/config"
	"github.com/DataGeek404/micro-finance-app-sub001/dispatch"
	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/middlewares"
	"github.com/DataGeek404/micro-finance-app-sub001/models"
	"github.com/DataGeek404/micro-finance-app-sub001/notify"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/DataGeek404/micro-finance-app-sub001/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, notify.Wrap(nil, notify.Error("Not found", "route not found")))
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{
				"path":           c.FullPath(),
				"correlation_id": cid,
			}).Error(c.Errors.String())
		}
	}
}

// readinessGate answers 503 for app endpoints until the dependencies are connected.
func readinessGate(ready func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Next()
			return
		}
		if ready != nil && !ready() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, notify.Wrap(nil, notify.Warning("Starting up", "the service is not ready yet, try again shortly")))
			return
		}
		c.Next()
	}
}

func corsMiddleware(settings *config.Settings) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	// production requires an explicit allowlist; an empty one denies all
	if settings.IsProduction() {
		if len(settings.CorsAllowedOrigins) > 0 {
			corsConfig.AllowOrigins = settings.CorsAllowedOrigins
		} else {
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", middlewares.CorrelationHeader)
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", middlewares.CorrelationHeader)
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	return cors.New(corsConfig)
}

func bootRouter() *gin.Engine {
	r := gin.New()
	r.Use(readinessGate(func() bool { return false }))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func newRouter(s *server) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(readinessGate(s.ready))
	r.Use(corsMiddleware(s.settings))
	r.Use(customErrorLogger(s.logger))
	r.Use(gin.Recovery())
	r.Use(middlewares.SessionMiddleware(s.verifier, s.settings.AuthCheckTimeout))
	if s.limiter != nil {
		r.Use(s.limiter.RateLimitMiddleware)
	}
	r.Use(middlewares.LoaderMiddleware(s.records))

	r.GET("/healthz", s.healthHandler)
	r.POST("/auth/signout", middlewares.RequireSession(), s.signOutHandler)

	api := r.Group("/api", middlewares.RequireSession())
	{
		api.GET("/dashboard/stats", s.dashboardStatsHandler)
		api.GET("/dashboard/activity", s.activityHandler)

		api.GET("/reports/:name", s.guard.Middleware(), s.reportHandler)
		api.POST("/reports/render", s.renderDocumentHandler)

		clientResource.mount(api, "/clients")
		branchResource.mount(api, "/branches", middlewares.RequireAdmin())
		roleResource.mount(api, "/roles", middlewares.RequireAdmin())
		expenseResource.mount(api, "/expenses")

		loans := loanResource.mount(api, "/loans")
		for action, next := range loanActions {
			loans.POST("/:id/"+action, loanActionHandler(action, next))
		}
		loans.GET("/:id/repayments", loanRepaymentsHandler)

		api.GET("/repayments", listRepaymentsHandler)
		api.POST("/repayments/:id/pay", payRepaymentHandler)

		payrolls := payrollResource.mount(api, "/payrolls")
		payrolls.POST("/:id/pay", payPayrollHandler)

		api.POST("/uploads", s.uploadHandler)

		if s.dispatch != nil {
			api.POST("/notifications/email", s.dispatch.SendEmail)
			api.POST("/notifications/sms", s.dispatch.SendSMS)
		}
	}

	r.NoRoute(customNotFoundHandler)
	return r
}

// connectBlobs uses Cloud Storage when a bucket is configured, otherwise keeps objects in memory.
func connectBlobs(ctx context.Context, settings *config.Settings, logger *logrus.Logger) gateway.Blobs {
	urls := utils.ObjectURLConfig{
		Bucket:        settings.GCSBucket,
		GCSHost:       settings.GCSURL,
		AccessBaseURL: settings.StorageAccessBaseURL,
	}
	if settings.GCSBucket == "" {
		logger.WithFields(logrus.Fields{"field": "storage"}).Warn("GCS_BUCKET not set; uploads and archived reports are kept in memory")
		return gateway.NewMemoryBlobs(settings.StorageAccessBaseURL)
	}
	client, err := config.GetGCSClient(ctx)
	if err != nil {
		config.LogError(logger, "server.go", "connectBlobs", "GetGCSClient", settings.GCSBucket, err)
		return gateway.NewMemoryBlobs(settings.StorageAccessBaseURL)
	}
	return gateway.NewGCSBlobs(client, settings.GCSBucket, urls)
}

func main() {
	logger := config.GetLogger()
	settings := config.LoadSettings()
	if err := settings.Validate(); err != nil {
		logger.WithFields(logrus.Fields{"field": "settings"}).Fatal(err.Error())
	}
	if settings.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	denylist := &auth.RedisDenylist{Prefix: "auth:revoked:"}
	verifier := auth.NewJWTVerifier(settings.AuthJwtSecret, denylist)
	s := &server{
		settings: settings,
		logger:   logger,
		gateway:  models.Gateway,
		ready: func() bool {
			return config.GetDB() != nil && config.GetRedisDB() != nil && models.Gateway() != nil
		},
		verifier: verifier,
		signOut:  verifier.SignOut,
		dispatch: dispatch.NewHandler(dispatch.Config{
			EmailAPIKey: settings.EmailProviderAPIKey,
			SmsAPIKey:   settings.SmsProviderAPIKey,
			Topic:       settings.NotificationTopic,
			PhoneRegion: settings.DefaultPhoneRegion,
		}, config.PubSubPublisher{}),
		now: time.Now,
	}
	// Start listening immediately (Cloud Run startup probe is TCP based).
	// Until DB/Redis are ready the boot router answers 503 for app endpoints.
	var handler atomic.Pointer[gin.Engine]
	handler.Store(bootRouter())
	srv := &http.Server{
		Addr: ":" + settings.Port,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler.Load().ServeHTTP(w, r)
		}),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      settings.ExportTimeout + 15*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry(sigCtx)
	denylist.Client = config.GetRedisDB()
	s.guard = middlewares.NewExportGuard(config.GetRedisLock(), settings.ExportLockTTL)
	if settings.RateLimitEnabled {
		s.limiter = middlewares.NewRateLimiter(config.GetRedisDB(), settings.RateLimitMax, settings.RateLimitWindow)
	}

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can block tables; SKIP_MIGRATIONS=true defers it to a separate job.
	if !settings.SkipMigrations {
		if err := models.MigrateTable(); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	blobs := connectBlobs(sigCtx, settings, logger)
	models.SetGateway(gateway.New(db, blobs, settings.GatewayTimeout))
	handler.Store(newRouter(s))

	archiver := &workflow.ReportArchiver{
		Records:  models.Gateway(),
		Store:    models.Gateway(),
		Locker:   config.GetRedisLock(),
		Names:    settings.ReportArchiveNames,
		Location: settings.Location(),
		OrgName:  settings.OrgName,
		LogoURL:  settings.OrgLogoURL,
		LockTTL:  settings.ExportLockTTL,
		Logger:   logger,
	}
	scheduler, err := workflow.ScheduleReportArchive(settings.ReportArchiveCron, settings.Location(), archiver)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "cron"}).Fatal(err.Error())
	}
	if scheduler != nil {
		scheduler.Start()
		logger.WithFields(logrus.Fields{"field": "cron", "spec": settings.ReportArchiveCron}).Info("report archive scheduled")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on :", settings.Port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background jobs first so they don't start new work while we're draining.
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	config.ClosePubSub()
	config.CloseGCS()
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
