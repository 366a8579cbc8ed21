// Package dispatch accepts email and SMS requests. Nothing is delivered: requests are
// validated, logged, optionally published to an audit topic and acknowledged.
package dispatch

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/config"
	"github.com/DataGeek404/micro-finance-app-sub001/notify"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

type Config struct {
	EmailAPIKey string
	SmsAPIKey   string
	Topic       string
	PhoneRegion string
}

type Handler struct {
	Config    Config
	Publisher Publisher
	Logger    *logrus.Logger
	NewID     func() string
}

func NewHandler(cfg Config, publisher Publisher) *Handler {
	return &Handler{Config: cfg, Publisher: publisher, Logger: config.GetLogger(), NewID: uuid.NewString}
}

type EmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type SMSRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type Receipt struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// auditEnvelope is what the audit topic receives. Message bodies are not forwarded.
type auditEnvelope struct {
	ID            string    `json:"id"`
	Channel       string    `json:"channel"`
	To            string    `json:"to"`
	Subject       string    `json:"subject,omitempty"`
	Length        int       `json:"length"`
	RequestedBy   string    `json:"requested_by,omitempty"`
	CorrelationId string    `json:"correlation_id,omitempty"`
	AcceptedAt    time.Time `json:"accepted_at"`
}

func (h *Handler) SendEmail(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.reject(c, http.StatusBadRequest, notify.Error("Invalid request", "request body must be a JSON object"))
		return
	}
	missing := missingFields(map[string]string{"to": req.To, "subject": req.Subject, "body": req.Body})
	if len(missing) > 0 {
		h.reject(c, http.StatusBadRequest, notify.Error("Missing fields", "required: "+strings.Join(missing, ", ")))
		return
	}
	to := strings.TrimSpace(req.To)
	if !utils.IsValidEmail(to) {
		h.reject(c, http.StatusBadRequest, notify.Error("Invalid recipient", "to must be an email address"))
		return
	}
	if h.Config.EmailAPIKey == "" {
		h.reject(c, http.StatusInternalServerError, notify.Error("Email unavailable", "email provider credentials are not configured"))
		return
	}
	h.accept(c, auditEnvelope{Channel: "email", To: to, Subject: req.Subject, Length: len(req.Body)})
}

func (h *Handler) SendSMS(c *gin.Context) {
	var req SMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.reject(c, http.StatusBadRequest, notify.Error("Invalid request", "request body must be a JSON object"))
		return
	}
	missing := missingFields(map[string]string{"to": req.To, "message": req.Message})
	if len(missing) > 0 {
		h.reject(c, http.StatusBadRequest, notify.Error("Missing fields", "required: "+strings.Join(missing, ", ")))
		return
	}
	region := h.Config.PhoneRegion
	if region == "" {
		region = utils.PhoneRegion()
	}
	to, err := utils.NormalizePhoneNumber(req.To, region)
	if err != nil {
		h.reject(c, http.StatusBadRequest, notify.Error("Invalid recipient", "to must be a valid phone number"))
		return
	}
	if h.Config.SmsAPIKey == "" {
		h.reject(c, http.StatusInternalServerError, notify.Error("SMS unavailable", "sms provider credentials are not configured"))
		return
	}
	h.accept(c, auditEnvelope{Channel: "sms", To: to, Length: len(req.Message)})
}

func (h *Handler) accept(c *gin.Context, audit auditEnvelope) {
	ctx := c.Request.Context()
	audit.ID = h.NewID()
	audit.AcceptedAt = time.Now().UTC()
	audit.RequestedBy, _ = utils.GetUserIdFromContext(ctx)
	audit.CorrelationId, _ = utils.GetCorrelationIdFromContext(ctx)

	h.Logger.WithFields(logrus.Fields{
		"dispatch_id":    audit.ID,
		"channel":        audit.Channel,
		"to":             audit.To,
		"correlation_id": audit.CorrelationId,
	}).Info("dispatch accepted")

	if h.Config.Topic != "" && h.Publisher != nil {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if _, err := h.Publisher.Publish(pctx, h.Config.Topic, audit); err != nil {
			config.LogError(h.Logger, "dispatch", "accept", audit.Channel, audit.ID, err)
		}
	}

	notice := notify.Success("Message queued", audit.Channel+" to "+audit.To+" accepted")
	notice.Log(h.Logger, logrus.Fields{"dispatch_id": audit.ID})
	c.JSON(http.StatusOK, notify.Wrap(Receipt{Success: true, ID: audit.ID}, notice))
}

func (h *Handler) reject(c *gin.Context, status int, notice *notify.Notice) {
	notice.Log(h.Logger, logrus.Fields{"path": c.FullPath(), "status": status})
	c.JSON(status, notify.Wrap(nil, notice))
}

func missingFields(fields map[string]string) []string {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
