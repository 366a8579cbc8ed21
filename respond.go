package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/DataGeek404/micro-finance-app-sub001/config"
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

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case utils.IsValidationError(err),
		errors.Is(err, render.ErrEmptyDataset),
		errors.Is(err, render.ErrUnknownFormat),
		errors.Is(err, reports.ErrUnknownReport),
		errors.Is(err, gateway.ErrInvalidColumn):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, gateway.ErrDuplicate),
		errors.Is(err, gateway.ErrReferenced),
		errors.Is(err, models.ErrInvalidLoanTransition),
		errors.Is(err, models.ErrLoanLocked),
		errors.Is(err, middlewares.ErrExportInProgress):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrGatewayNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func noticeFor(title string, status int, err error) *notify.Notice {
	switch status {
	case http.StatusBadRequest:
		return notify.Error(title, err.Error())
	case http.StatusNotFound:
		return notify.Error(title, "the record does not exist or is outside your branch")
	case http.StatusConflict:
		return notify.Warning(title, err.Error())
	case http.StatusGatewayTimeout:
		return notify.Error(title, "the data service did not answer in time, try again")
	case http.StatusServiceUnavailable:
		return notify.Error(title, "the service is still starting, try again shortly")
	default:
		return notify.Error(title, "something went wrong, try again")
	}
}

// respondError writes the error envelope and logs the notice with request details.
func respondError(c *gin.Context, title string, err error) {
	status := statusFor(err)
	notice := noticeFor(title, status, err)

	cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	fields := logrus.Fields{
		"status":         status,
		"path":           c.FullPath(),
		"correlation_id": cid,
		"error":          err.Error(),
	}
	var ve *utils.ValidationError
	if errors.As(err, &ve) && len(ve.Fields) > 0 {
		fields["fields"] = ve.Fields
	}
	notice.Log(config.GetLogger(), fields)

	if ve != nil && len(ve.Fields) > 0 {
		c.AbortWithStatusJSON(status, gin.H{"data": nil, "notice": notice, "fields": ve.Fields})
		return
	}
	c.AbortWithStatusJSON(status, notify.Wrap(nil, notice))
}

func respondOK(c *gin.Context, data any, notice *notify.Notice) {
	c.JSON(http.StatusOK, notify.Wrap(data, notice))
}

func respondCreated(c *gin.Context, data any, notice *notify.Notice) {
	c.JSON(http.StatusCreated, notify.Wrap(data, notice))
}
