package middlewares

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/config"
	"github.com/DataGeek404/micro-finance-app-sub001/notify"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
)

var ErrExportInProgress = errors.New("the same export is already running")

// ExportGuard allows one export per user, report and format at a time.
type ExportGuard struct {
	locker *redislock.Client
	ttl    time.Duration
}

func NewExportGuard(locker *redislock.Client, ttl time.Duration) *ExportGuard {
	return &ExportGuard{locker: locker, ttl: ttl}
}

func exportLockKey(user, report, format string) string {
	return fmt.Sprintf("lock:export:%s:%s:%s", user, strings.ToLower(report), strings.ToLower(format))
}

// Acquire takes the lock. The returned release is always safe to call, also when no
// lock client is configured.
func (g *ExportGuard) Acquire(ctx context.Context, user, report, format string) (func(), error) {
	if g == nil || g.locker == nil {
		return func() {}, nil
	}
	lock, err := g.locker.Obtain(ctx, exportLockKey(user, report, format), g.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrExportInProgress
	}
	if err != nil {
		return nil, err
	}
	return func() {
		// release even when the request context is already gone
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			config.LogError(config.GetLogger(), "middlewares", "ExportGuard", "release", lock.Key(), err)
		}
	}, nil
}

// Middleware guards the route for the duration of the handler. The report name comes
// from the ":name" parameter (or the last path segment) and the format from ?format=.
func (g *ExportGuard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := utils.GetUserIdFromContext(c.Request.Context())
		if user == "" {
			user = "ip:" + c.ClientIP()
		}
		report := c.Param("name")
		if report == "" {
			parts := strings.Split(strings.Trim(c.Request.URL.Path, "/"), "/")
			report = parts[len(parts)-1]
		}
		format := c.DefaultQuery("format", "html")

		release, err := g.Acquire(c.Request.Context(), user, report, format)
		if errors.Is(err, ErrExportInProgress) {
			c.AbortWithStatusJSON(http.StatusConflict, notify.Wrap(nil, notify.Warning("Export in progress", "the same export is already running, wait for it to finish")))
			return
		}
		if err != nil {
			config.LogError(config.GetLogger(), "middlewares", "ExportGuard", "obtain", report, err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, notify.Wrap(nil, notify.Error("Export unavailable", "could not start the export, try again")))
			return
		}
		defer release()
		c.Next()
	}
}
