package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/auth"
	"github.com/DataGeek404/micro-finance-app-sub001/config"
	"github.com/DataGeek404/micro-finance-app-sub001/dispatch"
	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/middlewares"
	"github.com/DataGeek404/micro-finance-app-sub001/models"
	"github.com/DataGeek404/micro-finance-app-sub001/models/reports"
	"github.com/DataGeek404/micro-finance-app-sub001/notify"
	"github.com/DataGeek404/micro-finance-app-sub001/render"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// server holds the handles every route needs. Gateway returns nil until the database is up.
type server struct {
	settings *config.Settings
	logger   *logrus.Logger
	gateway  func() gateway.Gateway
	ready    func() bool
	verifier auth.Verifier
	signOut  func(ctx context.Context, token string) error
	guard    *middlewares.ExportGuard
	limiter  *middlewares.RateLimiter
	dispatch *dispatch.Handler
	now      func() time.Time
}

func (s *server) records() gateway.Records {
	if g := s.gateway(); g != nil {
		return g
	}
	return nil
}

func (s *server) dashboardStatsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	now := s.now()
	loc := s.settings.Location()

	var stats *reports.DashboardStats
	err := models.ErrGatewayNotConfigured
	if g := s.gateway(); g != nil {
		stats, err = reports.GetDashboardStats(ctx, reports.NewGatewaySource(g), now, loc)
	}
	if err != nil {
		config.LogError(s.logger, "main", "dashboardStatsHandler", "GetDashboardStats", nil, err)
		notice := notify.Error("Dashboard unavailable", "statistics could not be loaded, showing empty values")
		notice.Log(s.logger, logrus.Fields{"path": c.FullPath()})
		respondOK(c, reports.DefaultDashboardStats(now, loc), notice)
		return
	}
	respondOK(c, stats, nil)
}

func (s *server) activityHandler(c *gin.Context) {
	limit := s.settings.ActivityLimit
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(c, "Invalid limit", utils.NewValidationError("limit must be a number"))
			return
		}
		limit = n
	}

	var items []reports.ActivityItem
	err := models.ErrGatewayNotConfigured
	if g := s.gateway(); g != nil {
		items, err = reports.GetRecentActivity(c.Request.Context(), reports.NewGatewaySource(g), limit)
	}
	if err != nil {
		config.LogError(s.logger, "main", "activityHandler", "GetRecentActivity", limit, err)
		notice := notify.Error("Activity unavailable", "recent activity could not be loaded")
		notice.Log(s.logger, logrus.Fields{"path": c.FullPath()})
		respondOK(c, []reports.ActivityItem{}, notice)
		return
	}
	respondOK(c, items, nil)
}

// reportOptions reads from/to (YYYY-MM-DD in the report timezone), status and branch_id.
func (s *server) reportOptions(c *gin.Context) (reports.ReportOptions, error) {
	loc := s.settings.Location()
	opts := reports.ReportOptions{
		OrgName:  s.settings.OrgName,
		LogoURL:  s.settings.OrgLogoURL,
		Location: loc,
		Now:      s.now(),
		Status:   c.Query("status"),
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &opts.From}, {"to", &opts.To}} {
		v := strings.TrimSpace(c.Query(p.name))
		if v == "" {
			continue
		}
		t, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			return opts, &utils.ValidationError{Fields: map[string]string{p.name: "date"}, Msg: p.name + " must be a date like 2024-03-31"}
		}
		*p.dst = &t
	}
	if opts.From != nil && opts.To != nil && opts.To.Before(*opts.From) {
		return opts, &utils.ValidationError{Fields: map[string]string{"to": "gtefield"}, Msg: "to must not be before from"}
	}
	if v := strings.TrimSpace(c.Query("branch_id")); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id < 0 {
			return opts, &utils.ValidationError{Fields: map[string]string{"branch_id": "number"}, Msg: "branch_id must be a number"}
		}
		opts.BranchId = id
	}
	return opts, nil
}

// reportHandler renders a named report. With archive=true the artifact goes to blob storage
// and the response carries its URL; otherwise it is the response body.
func (s *server) reportHandler(c *gin.Context) {
	name := c.Param("name")
	format, err := render.ParseFormat(c.Query("format"))
	if err != nil {
		respondError(c, "Export failed", err)
		return
	}
	opts, err := s.reportOptions(c)
	if err != nil {
		respondError(c, "Export failed", err)
		return
	}
	records := s.records()
	if records == nil {
		respondError(c, "Export failed", models.ErrGatewayNotConfigured)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.settings.ExportTimeout)
	defer cancel()

	doc, err := reports.BuildReport(ctx, records, name, opts)
	if err != nil {
		respondError(c, "Export failed", err)
		return
	}

	archive, _ := strconv.ParseBool(c.DefaultQuery("archive", "false"))
	if archive {
		surface := render.StorageSurface{Store: s.gateway(), Folder: "reports/" + strings.ToLower(name)}
		url, err := render.Export(ctx, doc, format, surface)
		if err != nil {
			respondError(c, "Export failed", err)
			return
		}
		respondOK(c, gin.H{"url": url, "format": format}, notify.Success("Report archived", doc.Title+" was saved"))
		return
	}
	s.writeDocument(ctx, c, doc, format)
}

type renderRequest struct {
	render.Document
	Format string `json:"format"`
}

// renderDocumentHandler renders a caller-supplied dataset.
func (s *server) renderDocumentHandler(c *gin.Context) {
	var req renderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "Render failed", utils.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	format, err := render.ParseFormat(req.Format)
	if err != nil {
		respondError(c, "Render failed", err)
		return
	}
	if len(req.Rows) > reports.MaxReportRows {
		respondError(c, "Render failed", utils.NewValidationError(fmt.Sprintf("at most %d rows can be rendered", reports.MaxReportRows)))
		return
	}
	doc := req.Document
	if strings.TrimSpace(doc.Title) == "" {
		doc.Title = "Report"
	}
	if doc.OrgName == "" {
		doc.OrgName = s.settings.OrgName
	}
	if doc.LogoURL == "" {
		doc.LogoURL = s.settings.OrgLogoURL
	}
	if doc.GeneratedAt.IsZero() {
		doc.GeneratedAt = s.now().In(s.settings.Location())
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.settings.ExportTimeout)
	defer cancel()
	s.writeDocument(ctx, c, doc, format)
}

func (s *server) writeDocument(ctx context.Context, c *gin.Context, doc render.Document, format render.Format) {
	_, err := render.Export(ctx, doc, format, render.ResponseSurface{Writer: c.Writer})
	if err == nil {
		return
	}
	if c.Writer.Written() {
		// headers are gone; all that is left is to record it
		_ = c.Error(fmt.Errorf("export %s: %w", doc.Title, err))
		return
	}
	respondError(c, "Export failed", err)
}

func (s *server) signOutHandler(c *gin.Context) {
	token, _ := utils.GetTokenFromContext(c.Request.Context())
	if token == "" {
		respondError(c, "Sign out failed", utils.NewValidationError("no session token"))
		return
	}
	if s.signOut != nil {
		if err := s.signOut(c.Request.Context(), token); err != nil {
			respondError(c, "Sign out failed", err)
			return
		}
	}
	respondOK(c, nil, notify.Success("Signed out", "your session has ended"))
}

func (s *server) healthHandler(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
