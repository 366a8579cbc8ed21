package middlewares

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/auth"
	"github.com/DataGeek404/micro-finance-app-sub001/config"
	"github.com/DataGeek404/micro-finance-app-sub001/notify"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SessionToken reads "Authorization: Bearer <jwt>", falling back to the legacy "token" header.
func SessionToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return strings.TrimSpace(r.Header.Get("token"))
}

// SessionMiddleware checks the request token with verifier and stores the user in the
// request context. Requests without a token pass through anonymously. Branch staff
// must carry a branch.
func SessionMiddleware(verifier auth.Verifier, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := SessionToken(c.Request)
		if token == "" {
			c.Next()
			return
		}

		state, err := auth.Resolve(c.Request.Context(), token, verifier, timeout)
		if err != nil {
			status := http.StatusUnauthorized
			notice := notify.Error("Session rejected", state.Reason)
			if errors.Is(err, auth.ErrCheckTimeout) {
				status = http.StatusServiceUnavailable
				notice = notify.Error("Session check timed out", "the auth service did not answer in time, try again")
			}
			notice.Log(config.GetLogger(), logrus.Fields{"path": c.Request.URL.Path, "state": state.Kind.String()})
			c.AbortWithStatusJSON(status, notify.Wrap(nil, notice))
			return
		}

		user := state.User
		if !user.IsAdmin() && user.BranchId <= 0 {
			notice := notify.Error("No branch assigned", "your account is not linked to a branch, ask an administrator to assign one")
			notice.Log(config.GetLogger(), logrus.Fields{"path": c.Request.URL.Path, "user_id": user.ID})
			c.AbortWithStatusJSON(http.StatusForbidden, notify.Wrap(nil, notice))
			return
		}
		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetUserIdInContext(ctx, user.ID)
		ctx = utils.SetUserNameInContext(ctx, user.Name)
		ctx = utils.SetUserRoleInContext(ctx, user.Role)
		ctx = utils.SetIsAdminInContext(ctx, user.IsAdmin())
		if user.BranchId > 0 {
			ctx = utils.SetBranchIdInContext(ctx, user.BranchId)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireSession rejects anonymous requests.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok || id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, notify.Wrap(nil, notify.Error("Sign in required", "this endpoint needs an authenticated session")))
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects callers that are not head-office staff.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isAdmin, _ := utils.GetIsAdminFromContext(c.Request.Context()); !isAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, notify.Wrap(nil, notify.Error("Not allowed", "this action is restricted to administrators")))
			return
		}
		c.Next()
	}
}
